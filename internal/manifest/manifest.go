// Package manifest maintains the on-disk list of produced segments.
package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Writer records produced segment names, newest last. Appends become
// visible to concurrent readers immediately.
type Writer interface {
	// Append records one segment name.
	Append(name string) error

	// Close flushes and releases the list.
	Close() error
}

// List flavors. TypeFlat is plain text, one name per line; TypeM3U8 is a
// live HLS media playlist.
const (
	TypeFlat = "flat"
	TypeM3U8 = "m3u8"
)

// Options configure a manifest writer.
type Options struct {
	// Path is the list file location
	Path string

	// Type selects the flavor; empty infers it from the Path extension,
	// defaulting to flat
	Type string

	// MaxEntries bounds the visible list, zero keeps every entry. The flat
	// flavor truncates the file whenever its append count reaches a
	// multiple of MaxEntries; the m3u8 flavor slides a window.
	MaxEntries int

	// TargetDuration is the planned segment duration in seconds, stamped
	// on every m3u8 entry
	TargetDuration float64

	// Logger receives rotation and finalization events
	Logger *slog.Logger
}

// New opens a manifest writer at opts.Path, truncating any previous list.
func New(opts Options) (Writer, error) {
	typ := opts.Type
	if typ == "" {
		typ = TypeFlat
		if strings.EqualFold(filepath.Ext(opts.Path), ".m3u8") {
			typ = TypeM3U8
		}
	}
	switch typ {
	case TypeFlat:
		return newFlatList(opts)
	case TypeM3U8:
		return newM3U8List(opts)
	default:
		return nil, fmt.Errorf("unknown segment list type %q", opts.Type)
	}
}

// flatList is the plain-text flavor. Writes go straight to the file so the
// list can be tailed while segments are still being produced.
type flatList struct {
	path   string
	max    int
	f      *os.File
	count  int64
	logger *slog.Logger
}

func newFlatList(opts Options) (*flatList, error) {
	f, err := os.OpenFile(opts.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening segment list: %w", err)
	}
	return &flatList{path: opts.Path, max: opts.MaxEntries, f: f, logger: opts.Logger}, nil
}

// Append writes one name and truncates the list when the append count
// reaches the next multiple of MaxEntries.
func (l *flatList) Append(name string) error {
	if _, err := fmt.Fprintln(l.f, name); err != nil {
		return fmt.Errorf("appending to segment list: %w", err)
	}
	l.count++
	if l.max > 0 && l.count%int64(l.max) == 0 {
		if err := l.f.Close(); err != nil {
			return fmt.Errorf("rotating segment list: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("rotating segment list: %w", err)
		}
		l.f = f
		l.logger.Debug("segment list rotated", "list", l.path, "appends", l.count)
	}
	return nil
}

func (l *flatList) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("closing segment list: %w", err)
	}
	return nil
}
