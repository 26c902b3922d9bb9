package format

import (
	"fmt"
	"hash"
	"hash/adler32"
	"io"

	"github.com/agleyzer/segmux/pkg/av"
)

// crcFormat runs an Adler-32 checksum over every payload byte and emits it
// as a single trailer line, so it also exercises the optional trailer path.
var crcFormat = &Format{
	Name:        "crc",
	Description: "one Adler-32 checksum over all payloads",
	Extensions:  []string{"crc"},
	NewWriter: func(w io.Writer, _ []av.StreamInfo) (Writer, error) {
		return &crcWriter{w: w, sum: adler32.New()}, nil
	},
}

type crcWriter struct {
	w   io.Writer
	sum hash.Hash32
}

func (c *crcWriter) WriteHeader() error { return nil }

func (c *crcWriter) WritePacket(pkt *av.Packet) error {
	_, err := c.sum.Write(pkt.Data)
	return err
}

func (c *crcWriter) WriteTrailer() error {
	_, err := fmt.Fprintf(c.w, "CRC=0x%08x\n", c.sum.Sum32())
	return err
}
