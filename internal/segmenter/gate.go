package segmenter

import (
	"strconv"
	"strings"
)

// frameGate restricts segment boundaries to an explicit allow-list of video
// frame counts.
//
// Matching is exact: when no keyframe lands on the armed target, the target
// is passed without firing and splitting stays suppressed until the count
// reaches the next listed entry. Callers that list a target must make sure
// a keyframe actually falls on it.
type frameGate struct {
	targets []int64
	cursor  int
}

// newFrameGate parses a comma-delimited list of strictly ascending,
// non-negative frame counts. An empty spec returns a disabled gate that
// permits every split. Frame 0 is the implicit start of the first segment,
// so a leading 0 entry is skipped; a list of just "0" is an enabled gate
// with nothing left to permit.
func newFrameGate(spec string) (*frameGate, error) {
	if spec == "" {
		return &frameGate{}, nil
	}
	parts := strings.Split(spec, ",")
	targets := make([]int64, 0, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, &ConfigError{
				Option: "segment_valid_frames",
				Reason: "entry " + strconv.Quote(part) + " is not an integer",
			}
		}
		if n < 0 {
			return nil, &ConfigError{
				Option: "segment_valid_frames",
				Reason: "frame counts must be non-negative",
			}
		}
		if i > 0 && n <= targets[i-1] {
			return nil, &ConfigError{
				Option: "segment_valid_frames",
				Reason: "frame counts must be strictly ascending",
			}
		}
		targets = append(targets, n)
	}
	g := &frameGate{targets: targets}
	if targets[0] == 0 {
		g.cursor = 1
	}
	return g, nil
}

// enabled reports whether the gate carries an allow-list at all.
func (g *frameGate) enabled() bool {
	return len(g.targets) > 0
}

// advance moves the armed target past frame counts that have already gone
// by. It never steps beyond the last entry.
func (g *frameGate) advance(frameCount int64) {
	for g.cursor < len(g.targets) && g.targets[g.cursor] < frameCount && g.cursor+1 < len(g.targets) {
		g.cursor++
	}
}

// permits reports whether a split may occur at the given frame count.
func (g *frameGate) permits(frameCount int64) bool {
	if !g.enabled() {
		return true
	}
	return g.cursor < len(g.targets) && g.targets[g.cursor] == frameCount
}
