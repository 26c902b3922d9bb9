// Package segmenter splits a continuous packet stream into a sequence of
// independently playable container files and maintains a list of the
// segments it produced.
package segmenter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"

	"github.com/agleyzer/segmux/internal/format"
	"github.com/agleyzer/segmux/internal/manifest"
	"github.com/agleyzer/segmux/pkg/av"
)

// DefaultSegmentTime is the target segment length used when none is
// configured, in seconds.
const DefaultSegmentTime = 2.0

// DefaultListSize is the segment list bound offered by the command-line
// surface when none is configured.
const DefaultListSize = 5

// SinkOpener opens the output sink for one segment. Implementations must
// honor ctx cancellation by failing the open.
type SinkOpener func(ctx context.Context, path string) (io.WriteCloser, error)

// SegmentInfo describes one finished segment, as passed to OnSegmentEnd.
type SegmentInfo struct {
	// Seq is the run-wide segment index, starting at 0 and never wrapping
	Seq int64

	// Number is the ordinal rendered into the filename, after wrapping
	Number int

	// Path is the rendered segment filename
	Path string

	// Packets and Bytes count what the segment received
	Packets int64
	Bytes   int64

	// Start and End delimit the segment's presentation interval in seconds
	Start float64
	End   float64
}

// Config carries the segmenter options. The zero value of an optional
// field means unset; fields with a stated default apply it at New.
type Config struct {
	// Pattern is the output filename template. It must contain exactly one
	// integer placeholder (%d, optionally zero padded) for the segment
	// number.
	Pattern string

	// Format names the container format for every segment. Empty infers
	// the format from the Pattern extension.
	Format string

	// SegmentTime is the target segment length in seconds. Zero means
	// DefaultSegmentTime; negative is rejected.
	SegmentTime float64

	// ListPath is the segment list location. Empty disables the list.
	ListPath string

	// ListType selects the list flavor (flat or m3u8). Empty infers it
	// from the ListPath extension.
	ListType string

	// ListSize bounds the visible list. Zero keeps every entry.
	ListSize int

	// Wrap is the modulus applied to segment numbers before filename
	// rendering. Zero never wraps.
	Wrap int

	// ValidFrames restricts splits to a comma-delimited ascending list of
	// video frame counts. Empty disables the restriction.
	ValidFrames string

	// Formats is the registry to resolve Format against. Nil means the
	// built-in registry.
	Formats *format.Registry

	// OpenSink overrides how per-segment sinks are opened. Nil opens
	// regular files, truncating existing ones.
	OpenSink SinkOpener

	// OnSegmentEnd, when set, is invoked after each segment is finalized.
	OnSegmentEnd func(info SegmentInfo)
}

// Stats is a point-in-time snapshot of run counters. Reading it is safe
// from any goroutine while packets flow.
type Stats struct {
	SegmentsStarted   int64 `json:"segments_started"`
	SegmentsCompleted int64 `json:"segments_completed"`
	PacketsWritten    int64 `json:"packets_written"`
	BytesWritten      int64 `json:"bytes_written"`
}

type state int

const (
	stateUninitialized state = iota
	stateOpen
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Muxer drives the segment lifecycle for one packet stream. A Muxer owns
// its output target exclusively and is not safe for concurrent use; only
// Stats may be called from other goroutines.
type Muxer struct {
	cfg    Config
	reg    *format.Registry
	logger *slog.Logger
	gate   *frameGate

	format   *format.Format
	streams  []av.StreamInfo
	hasVideo bool

	state      state
	number     int   // filename ordinal, wraps
	started    int64 // segments started over the whole run, never wraps
	frameCount int64 // video packets seen so far
	targetDur  int64 // target segment length in microseconds

	cur  *openSegment
	list manifest.Writer

	statStarted   atomic.Int64
	statCompleted atomic.Int64
	statPackets   atomic.Int64
	statBytes     atomic.Int64
}

// openSegment is the currently recording segment.
type openSegment struct {
	seq     int64
	number  int
	path    string
	sink    io.WriteCloser
	w       format.Writer
	packets int64
	bytes   int64
	start   float64
	end     float64
	timed   bool
}

// New validates cfg and returns a muxer ready for WriteHeader.
func New(cfg Config, logger *slog.Logger) (*Muxer, error) {
	if cfg.Pattern == "" {
		return nil, &ConfigError{Option: "pattern", Reason: "output pattern is required"}
	}
	if err := validatePattern(cfg.Pattern); err != nil {
		return nil, err
	}
	if cfg.SegmentTime < 0 {
		return nil, &ConfigError{Option: "segment_time", Reason: "segment duration must be positive"}
	}
	if cfg.ListSize < 0 {
		return nil, &ConfigError{Option: "segment_list_size", Reason: "entry bound cannot be negative"}
	}
	if cfg.Wrap < 0 {
		return nil, &ConfigError{Option: "segment_wrap", Reason: "wrap modulus cannot be negative"}
	}

	gate, err := newFrameGate(cfg.ValidFrames)
	if err != nil {
		return nil, err
	}

	segTime := cfg.SegmentTime
	if segTime == 0 {
		segTime = DefaultSegmentTime
	}

	reg := cfg.Formats
	if reg == nil {
		reg = format.Builtin()
	}

	return &Muxer{
		cfg:       cfg,
		reg:       reg,
		logger:    logger,
		gate:      gate,
		targetDur: int64(segTime * 1e6),
	}, nil
}

// WriteHeader resolves the output format, opens the segment list and starts
// segment 0. It either succeeds completely or releases everything it
// opened.
func (m *Muxer) WriteHeader(ctx context.Context, streams []av.StreamInfo) error {
	if m.state != stateUninitialized {
		return fmt.Errorf("segmenter: WriteHeader on %s muxer", m.state)
	}

	f, err := m.reg.Resolve(m.cfg.Format, m.cfg.Pattern)
	if err != nil {
		return &ConfigError{Option: "segment_format", Reason: err.Error()}
	}
	if f.NoFile {
		return &ConfigError{
			Option: "segment_format",
			Reason: fmt.Sprintf("format %s manages its own files and cannot write into segment sinks", f.Name),
		}
	}
	m.format = f
	m.streams = slices.Clone(streams)

	videoStreams := 0
	for _, st := range m.streams {
		if st.Type == av.MediaTypeVideo {
			videoStreams++
		}
	}
	m.hasVideo = videoStreams > 0
	if videoStreams > 1 {
		m.logger.Warn("multiple video streams present, any of them can trigger a split",
			"videoStreams", videoStreams)
	}

	if m.cfg.ListPath != "" {
		list, err := manifest.New(manifest.Options{
			Path:           m.cfg.ListPath,
			Type:           m.cfg.ListType,
			MaxEntries:     m.cfg.ListSize,
			TargetDuration: float64(m.targetDur) / 1e6,
			Logger:         m.logger,
		})
		if err != nil {
			return &ResourceError{Op: "open", Path: m.cfg.ListPath, Err: err}
		}
		m.list = list
	}

	if err := m.startSegment(ctx); err != nil {
		if m.list != nil {
			m.list.Close()
			m.list = nil
		}
		m.state = stateClosed
		return err
	}
	if err := m.appendList(); err != nil {
		return m.abort(err)
	}

	m.state = stateOpen
	m.logger.Info("segmentation started",
		"format", f.Name,
		"pattern", m.cfg.Pattern,
		"segmentTime", float64(m.targetDur)/1e6,
		"list", m.cfg.ListPath,
	)
	return nil
}

// WritePacket runs the split decision for pkt, rolls segments when it
// fires and delivers the packet to exactly one segment writer. Any
// lifecycle failure aborts the whole run.
func (m *Muxer) WritePacket(ctx context.Context, pkt *av.Packet) error {
	if m.state != stateOpen {
		return ErrNotOpen
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("segmenter: packet for unknown stream %d", pkt.StreamIndex)
	}
	st := m.streams[pkt.StreamIndex]
	isVideo := st.Type == av.MediaTypeVideo

	canSplit := m.hasVideo && isVideo && pkt.IsKeyFrame
	if canSplit && av.CompareTS(pkt.PTS, st.TimeBase, m.targetDur*m.started, av.MicrosecondTimeBase) < 0 {
		// The elapsed-time budget is absolute: segment n may begin only at
		// or after n times the target duration from the start of the run.
		canSplit = false
	}
	if m.gate.enabled() {
		m.gate.advance(m.frameCount)
		if !m.gate.permits(m.frameCount) {
			canSplit = false
		}
	}

	if canSplit {
		m.logger.Debug("segment boundary",
			"segment", m.cur.path,
			"pts", pkt.PTS,
			"frame", m.frameCount,
		)
		if err := m.endSegment(); err != nil {
			return m.abort(err)
		}
		if err := m.startSegment(ctx); err != nil {
			return m.abort(err)
		}
		if err := m.appendList(); err != nil {
			return m.abort(err)
		}
	}

	if isVideo {
		m.frameCount++
	}

	if err := m.cur.w.WritePacket(pkt); err != nil {
		return m.abort(&FormatError{Op: "packet", Segment: m.cur.path, Err: err})
	}
	m.cur.note(pkt, st.TimeBase)
	m.statPackets.Add(1)
	m.statBytes.Add(int64(len(pkt.Data)))
	return nil
}

// WriteTrailer finalizes the last segment, closes the segment list and
// releases all state. Cleanup always completes; the first error wins.
func (m *Muxer) WriteTrailer() error {
	if m.state != stateOpen {
		return ErrNotOpen
	}
	err := m.endSegment()
	if m.list != nil {
		if cerr := m.list.Close(); cerr != nil && err == nil {
			err = &ResourceError{Op: "close", Path: m.cfg.ListPath, Err: cerr}
		}
		m.list = nil
	}
	m.state = stateClosed
	m.logger.Info("segmentation finished",
		"segments", m.started,
		"packets", m.statPackets.Load(),
		"bytes", m.statBytes.Load(),
	)
	return err
}

// Stats returns a snapshot of the run counters.
func (m *Muxer) Stats() Stats {
	return Stats{
		SegmentsStarted:   m.statStarted.Load(),
		SegmentsCompleted: m.statCompleted.Load(),
		PacketsWritten:    m.statPackets.Load(),
		BytesWritten:      m.statBytes.Load(),
	}
}

// startSegment renders the next filename, opens its sink and writes the
// container header. On failure everything just opened is closed again and
// no current segment remains.
func (m *Muxer) startSegment(ctx context.Context) error {
	if m.cfg.Wrap > 0 {
		m.number %= m.cfg.Wrap
	}
	path := fmt.Sprintf(m.cfg.Pattern, m.number)
	number := m.number
	m.number++
	seq := m.started
	m.started++

	open := m.cfg.OpenSink
	if open == nil {
		open = defaultOpenSink
	}
	sink, err := open(ctx, path)
	if err != nil {
		return &ResourceError{Op: "open", Path: path, Err: err}
	}

	w, err := m.format.NewWriter(sink, m.streams)
	if err != nil {
		sink.Close()
		return &ResourceError{Op: "alloc", Path: path, Err: err}
	}
	if err := w.WriteHeader(); err != nil {
		m.logger.Error("failed to start segment", "segment", path, "error", err)
		sink.Close()
		return &FormatError{Op: "header", Segment: path, Err: err}
	}

	m.cur = &openSegment{seq: seq, number: number, path: path, sink: sink, w: w}
	m.statStarted.Add(1)
	m.logger.Debug("segment started", "segment", path, "seq", seq)
	return nil
}

// endSegment writes the trailer when the format has one, then always closes
// the sink and drops the writer. A trailer failure is reported but never
// blocks the close.
func (m *Muxer) endSegment() error {
	seg := m.cur
	m.cur = nil

	var err error
	if tw, ok := seg.w.(format.TrailerWriter); ok {
		if terr := tw.WriteTrailer(); terr != nil {
			err = &FormatError{Op: "trailer", Segment: seg.path, Err: terr}
			m.logger.Error("failed to end segment", "segment", seg.path, "error", terr)
		}
	}
	if cerr := seg.sink.Close(); cerr != nil && err == nil {
		err = &ResourceError{Op: "close", Path: seg.path, Err: cerr}
	}
	if err != nil {
		return err
	}

	m.statCompleted.Add(1)
	m.logger.Debug("segment complete",
		"segment", seg.path,
		"packets", seg.packets,
		"bytes", seg.bytes,
	)
	if m.cfg.OnSegmentEnd != nil {
		m.cfg.OnSegmentEnd(SegmentInfo{
			Seq:     seg.seq,
			Number:  seg.number,
			Path:    seg.path,
			Packets: seg.packets,
			Bytes:   seg.bytes,
			Start:   seg.start,
			End:     seg.end,
		})
	}
	return nil
}

// appendList records the current segment in the list, if one is kept.
func (m *Muxer) appendList() error {
	if m.list == nil {
		return nil
	}
	if err := m.list.Append(m.cur.path); err != nil {
		return &ResourceError{Op: "append", Path: m.cfg.ListPath, Err: err}
	}
	return nil
}

// abort releases everything after a mid-run failure. The run is over and
// later calls are rejected.
func (m *Muxer) abort(err error) error {
	if m.cur != nil {
		m.cur.sink.Close()
		m.cur = nil
	}
	if m.list != nil {
		m.list.Close()
		m.list = nil
	}
	m.state = stateClosed
	m.logger.Error("segmentation aborted", "error", err)
	return err
}

// note accounts one delivered packet.
func (s *openSegment) note(pkt *av.Packet, tb av.Rational) {
	start := tb.Seconds(pkt.PTS)
	end := tb.Seconds(pkt.PTS + pkt.Duration)
	if !s.timed || start < s.start {
		s.start = start
	}
	if !s.timed || end > s.end {
		s.end = end
	}
	s.timed = true
	s.packets++
	s.bytes += int64(len(pkt.Data))
}

func defaultOpenSink(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// validatePattern checks that the template has exactly one integer
// placeholder and no other verbs, so rendering can never mangle a name
// mid-run.
func validatePattern(pattern string) error {
	placeholders := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		i++
		if i < len(pattern) && pattern[i] == '%' {
			continue
		}
		for i < len(pattern) && pattern[i] >= '0' && pattern[i] <= '9' {
			i++
		}
		if i >= len(pattern) || pattern[i] != 'd' {
			return &ConfigError{
				Option: "pattern",
				Reason: fmt.Sprintf("unsupported placeholder in %q, only %%d is recognized", pattern),
			}
		}
		placeholders++
	}
	if placeholders != 1 {
		return &ConfigError{
			Option: "pattern",
			Reason: fmt.Sprintf("pattern %q must contain exactly one %%d placeholder", pattern),
		}
	}
	return nil
}
