package segmenter

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned by WritePacket and WriteTrailer once the muxer has
// been closed or its run has aborted.
var ErrNotOpen = errors.New("segmenter: muxer is not open")

// ConfigError reports an invalid option value. It is raised at construction
// or header time, before any segment output exists.
type ConfigError struct {
	// Option is the name of the offending option
	Option string

	// Reason explains what is wrong with the value
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("segmenter: invalid %s: %s", e.Option, e.Reason)
}

// ResourceError reports a failure acquiring or releasing an output
// resource: a segment sink, the segment list, or writer allocation. It is
// fatal for the run.
type ResourceError struct {
	// Op is the operation that failed: open, alloc, append or close
	Op string

	// Path is the resource involved
	Path string

	// Err is the underlying failure
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("segmenter: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// FormatError reports a container writer failure on a specific segment. It
// is fatal for the run.
type FormatError struct {
	// Op is the writer call that failed: header, packet or trailer
	Op string

	// Segment is the path of the segment being written
	Segment string

	// Err is the underlying failure
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("segmenter: writing %s of %s: %v", e.Op, e.Segment, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
