package format

import (
	"io"

	"github.com/agleyzer/segmux/pkg/av"
)

// dataFormat concatenates raw packet payloads with no framing and no
// trailer.
var dataFormat = &Format{
	Name:        "data",
	Description: "raw packet payloads, concatenated",
	Extensions:  []string{"dat", "bin", "raw"},
	NewWriter: func(w io.Writer, _ []av.StreamInfo) (Writer, error) {
		return &dataWriter{w: w}, nil
	},
}

type dataWriter struct {
	w io.Writer
}

func (d *dataWriter) WriteHeader() error { return nil }

func (d *dataWriter) WritePacket(pkt *av.Packet) error {
	_, err := d.w.Write(pkt.Data)
	return err
}
