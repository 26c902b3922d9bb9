// Package format defines the container writer contract and the registry of
// output formats the segmenter can produce.
package format

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/agleyzer/segmux/pkg/av"
)

// Writer produces one container file: a header, any number of packets and,
// for formats that implement TrailerWriter, a trailer. Closing the
// underlying sink is the caller's job.
type Writer interface {
	// WriteHeader writes the container preamble.
	WriteHeader() error

	// WritePacket appends one packet to the container.
	WritePacket(pkt *av.Packet) error
}

// TrailerWriter is implemented by writers whose container ends with a
// trailer. Formats without one simply do not implement the interface, and
// that is not an error.
type TrailerWriter interface {
	// WriteTrailer finalizes the container.
	WriteTrailer() error
}

// Format describes one registered container format.
type Format struct {
	// Name is the registry key.
	Name string

	// Description is a human-readable one-liner for listings.
	Description string

	// Extensions are the filename extensions (without the dot) the format
	// is inferred from when no name is given.
	Extensions []string

	// NoFile marks formats that open and manage their own output files.
	// They cannot be driven through an externally opened sink.
	NoFile bool

	// NewWriter allocates a writer emitting to w for the given streams.
	NewWriter func(w io.Writer, streams []av.StreamInfo) (Writer, error)
}

// Registry maps format names to descriptors. Register everything before
// handing the registry to concurrent users; lookups do not lock.
type Registry struct {
	byName map[string]*Format
	names  []string // registration order, for listings
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Format)}
}

// Builtin returns a fresh registry holding every built-in format.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(dataFormat)
	r.Register(crcFormat)
	r.Register(frameCRCFormat)
	r.Register(nullFormat)
	return r
}

// Register adds f to the registry. Like database/sql.Register it panics on
// a nil format, an empty name or a duplicate name; registration mistakes
// are programmer errors, not runtime conditions.
func (r *Registry) Register(f *Format) {
	if f == nil || f.Name == "" || f.NewWriter == nil {
		panic("format: Register with incomplete format")
	}
	if _, dup := r.byName[f.Name]; dup {
		panic("format: Register called twice for " + f.Name)
	}
	r.byName[f.Name] = f
	r.names = append(r.names, f.Name)
}

// Lookup returns the format registered under name.
func (r *Registry) Lookup(name string) (*Format, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Resolve picks the format for an output. A non-empty name wins; otherwise
// the format is inferred from the extension of pathHint.
func (r *Registry) Resolve(name, pathHint string) (*Format, error) {
	if name != "" {
		f, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown format %q", name)
		}
		return f, nil
	}
	if ext := strings.TrimPrefix(filepath.Ext(pathHint), "."); ext != "" {
		for _, n := range r.names {
			f := r.byName[n]
			for _, e := range f.Extensions {
				if strings.EqualFold(e, ext) {
					return f, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("no format matches %q, name one explicitly", pathHint)
}

// Formats returns all registered formats in registration order.
func (r *Registry) Formats() []*Format {
	out := make([]*Format, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}
