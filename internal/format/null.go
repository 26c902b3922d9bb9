package format

import (
	"io"

	"github.com/agleyzer/segmux/pkg/av"
)

// nullFormat discards everything. Useful for measuring the segmentation
// machinery without the disk in the way.
var nullFormat = &Format{
	Name:        "null",
	Description: "discards all output",
	NewWriter: func(io.Writer, []av.StreamInfo) (Writer, error) {
		return nullWriter{}, nil
	},
}

type nullWriter struct{}

func (nullWriter) WriteHeader() error           { return nil }
func (nullWriter) WritePacket(*av.Packet) error { return nil }
