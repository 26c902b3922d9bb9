package format

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/agleyzer/segmux/pkg/av"
)

func TestRegistryResolve(t *testing.T) {
	reg := Builtin()

	tests := []struct {
		name        string
		formatName  string
		pathHint    string
		expected    string
		shouldError bool
	}{
		{"explicit name", "crc", "out_%03d.dat", "crc", false},
		{"explicit name ignores extension", "null", "out_%03d.crc", "null", false},
		{"unknown name", "mpegts", "out_%03d.ts", "", true},
		{"dat extension", "", "out_%03d.dat", "data", false},
		{"bin extension", "", "clip_%d.bin", "data", false},
		{"crc extension", "", "sum_%02d.crc", "crc", false},
		{"framecrc extension", "", "frames_%05d.framecrc", "framecrc", false},
		{"extension case insensitive", "", "OUT_%d.DAT", "data", false},
		{"no extension", "", "out_%03d", "", true},
		{"unknown extension", "", "out_%03d.xyz", "", true},
		{"empty everything", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := reg.Resolve(tt.formatName, tt.pathHint)
			if tt.shouldError {
				if err == nil {
					t.Fatalf("expected error, got format %q", f.Name)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Name != tt.expected {
				t.Errorf("resolved %q, expected %q", f.Name, tt.expected)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := Builtin()

	if _, ok := reg.Lookup("data"); !ok {
		t.Error("expected data format to be registered")
	}
	if _, ok := reg.Lookup("nonexistent"); ok {
		t.Error("expected lookup miss for nonexistent format")
	}
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()

	reg := NewRegistry()
	f := &Format{
		Name: "dup",
		NewWriter: func(io.Writer, []av.StreamInfo) (Writer, error) {
			return nullWriter{}, nil
		},
	}
	reg.Register(f)
	reg.Register(f)
}

func TestBuiltinOrder(t *testing.T) {
	names := []string{}
	for _, f := range Builtin().Formats() {
		names = append(names, f.Name)
	}

	expected := []string{"data", "crc", "framecrc", "null"}
	if len(names) != len(expected) {
		t.Fatalf("got %d formats, expected %d", len(names), len(expected))
	}
	for i, n := range expected {
		if names[i] != n {
			t.Errorf("format %d = %q, expected %q", i, names[i], n)
		}
	}
}

func testVideoStream() []av.StreamInfo {
	return []av.StreamInfo{
		{Index: 0, Type: av.MediaTypeVideo, Codec: "h264", TimeBase: av.Rational{Num: 1, Den: 90000}},
	}
}

func TestDataWriterConcatenatesPayloads(t *testing.T) {
	var buf bytes.Buffer
	w, err := dataFormat.NewWriter(&buf, testVideoStream())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	for _, payload := range []string{"abc", "def"} {
		pkt := &av.Packet{StreamIndex: 0, Data: []byte(payload)}
		if err := w.WritePacket(pkt); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	if _, ok := w.(TrailerWriter); ok {
		t.Error("data format should not have a trailer")
	}
	if buf.String() != "abcdef" {
		t.Errorf("output = %q, expected %q", buf.String(), "abcdef")
	}
}

func TestCRCWriterTrailer(t *testing.T) {
	var buf bytes.Buffer
	w, err := crcFormat.NewWriter(&buf, testVideoStream())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	for _, payload := range []string{"abc", "def"} {
		if err := w.WritePacket(&av.Packet{Data: []byte(payload)}); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output before trailer, got %q", buf.String())
	}

	tw, ok := w.(TrailerWriter)
	if !ok {
		t.Fatal("crc format must implement TrailerWriter")
	}
	if err := tw.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer failed: %v", err)
	}

	// Adler-32 of "abcdef" is 0x081e0256.
	expected := "CRC=0x081e0256\n"
	if buf.String() != expected {
		t.Errorf("trailer = %q, expected %q", buf.String(), expected)
	}
}

func TestFrameCRCWriterLines(t *testing.T) {
	var buf bytes.Buffer
	w, err := frameCRCFormat.NewWriter(&buf, testVideoStream())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	packets := []*av.Packet{
		{StreamIndex: 0, PTS: 0, DTS: 0, Data: []byte("abc")},
		{StreamIndex: 0, PTS: 3000, DTS: 3000, Data: []byte("def")},
	}
	for _, pkt := range packets {
		if err := w.WritePacket(pkt); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	expected := "#tb 0: 1/90000\n" +
		"0,          0,          0,        3, 0x024d0127\n" +
		"0,       3000,       3000,        3, 0x025f0130\n"
	if buf.String() != expected {
		t.Errorf("output = %q, expected %q", buf.String(), expected)
	}
}

func TestNullWriterDiscards(t *testing.T) {
	var buf bytes.Buffer
	w, err := nullFormat.NewWriter(&buf, nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if err := w.WritePacket(&av.Packet{Data: []byte("anything")}); err != nil {
		t.Fatalf("WritePacket failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("null format wrote %d bytes", buf.Len())
	}
}

// failingWriter trips on demand to exercise error propagation.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write([]byte) (int, error) {
	return 0, f.err
}

func TestWriterErrorsPropagate(t *testing.T) {
	sinkErr := errors.New("sink full")
	w, err := dataFormat.NewWriter(&failingWriter{err: sinkErr}, testVideoStream())
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.WritePacket(&av.Packet{Data: []byte("x")}); !errors.Is(err, sinkErr) {
		t.Errorf("WritePacket error = %v, expected %v", err, sinkErr)
	}
}
