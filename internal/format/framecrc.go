package format

import (
	"fmt"
	"hash/adler32"
	"io"

	"github.com/agleyzer/segmux/pkg/av"
)

// frameCRCFormat writes one "#tb" comment line per stream, then one line
// per packet carrying its timing, payload size and Adler-32 checksum.
var frameCRCFormat = &Format{
	Name:        "framecrc",
	Description: "per-packet Adler-32 checksum lines",
	Extensions:  []string{"framecrc"},
	NewWriter: func(w io.Writer, streams []av.StreamInfo) (Writer, error) {
		return &frameCRCWriter{w: w, streams: streams}, nil
	},
}

type frameCRCWriter struct {
	w       io.Writer
	streams []av.StreamInfo
}

func (f *frameCRCWriter) WriteHeader() error {
	for _, st := range f.streams {
		_, err := fmt.Fprintf(f.w, "#tb %d: %d/%d\n", st.Index, st.TimeBase.Num, st.TimeBase.Den)
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *frameCRCWriter) WritePacket(pkt *av.Packet) error {
	_, err := fmt.Fprintf(f.w, "%d, %10d, %10d, %8d, 0x%08x\n",
		pkt.StreamIndex, pkt.DTS, pkt.PTS, len(pkt.Data), adler32.Checksum(pkt.Data))
	return err
}
