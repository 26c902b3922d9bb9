package manifest

import (
	"fmt"
	"log/slog"

	"github.com/google/renameio/v2"
	"github.com/grafov/m3u8"
)

// m3u8List is the HLS flavor: a sliding live media playlist, rewritten
// atomically on every append so a reader never sees a torn file, and
// finalized with an end tag on close.
type m3u8List struct {
	path    string
	max     int
	target  float64
	entries []listEntry
	seq     uint64
	closed  bool
	logger  *slog.Logger
}

type listEntry struct {
	uri      string
	duration float64
}

func newM3U8List(opts Options) (*m3u8List, error) {
	l := &m3u8List{
		path:   opts.Path,
		max:    opts.MaxEntries,
		target: opts.TargetDuration,
		logger: opts.Logger,
	}
	// An empty playlist marks the list as live from the moment the run
	// opens, before the first segment lands.
	if err := l.write(false); err != nil {
		return nil, err
	}
	return l, nil
}

// Append adds one segment, slides the window past MaxEntries and rewrites
// the playlist.
func (l *m3u8List) Append(name string) error {
	l.entries = append(l.entries, listEntry{uri: name, duration: l.target})
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = l.entries[1:]
		l.seq++
	}
	return l.write(false)
}

// Close rewrites the playlist one last time with the end tag, turning the
// live list into a finished one.
func (l *m3u8List) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.logger.Debug("finalizing playlist", "list", l.path, "entries", len(l.entries))
	return l.write(true)
}

// write regenerates the playlist from the current window and replaces the
// file in one rename.
func (l *m3u8List) write(final bool) error {
	capacity := uint(len(l.entries))
	if capacity == 0 {
		capacity = 1
	}
	pl, err := m3u8.NewMediaPlaylist(0, capacity)
	if err != nil {
		return fmt.Errorf("building playlist: %w", err)
	}
	for _, e := range l.entries {
		if err := pl.Append(e.uri, e.duration, ""); err != nil {
			return fmt.Errorf("building playlist: %w", err)
		}
	}
	pl.SeqNo = l.seq
	pl.TargetDuration = l.target
	if final {
		pl.Close()
	}
	if err := renameio.WriteFile(l.path, pl.Encode().Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing playlist: %w", err)
	}
	return nil
}
