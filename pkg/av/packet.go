// Package av defines the packet and stream vocabulary shared by packet
// sources, container writers and the segmenter.
package av

// MediaType identifies the kind of elementary stream a packet belongs to.
type MediaType int

const (
	// MediaTypeVideo is a video elementary stream.
	MediaTypeVideo MediaType = iota

	// MediaTypeAudio is an audio elementary stream.
	MediaTypeAudio

	// MediaTypeData is a generic data stream (timed metadata, captions).
	MediaTypeData
)

// String returns the lower-case name of the media type.
func (t MediaType) String() string {
	switch t {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// StreamInfo describes one elementary stream of a run.
type StreamInfo struct {
	// Index is the stream's position in the run's stream list
	Index int

	// Type is the stream's media type
	Type MediaType

	// Codec is the codec name, informational only
	Codec string

	// TimeBase is the unit of the stream's timestamps. Both parts must be
	// positive.
	TimeBase Rational
}

// Packet is one encoded frame with its timing, as handed from a source to
// a container writer.
type Packet struct {
	// StreamIndex identifies the stream the packet belongs to
	StreamIndex int

	// IsKeyFrame marks packets a decoder can start from
	IsKeyFrame bool

	// PTS is the presentation timestamp in the stream's time base
	PTS int64

	// DTS is the decode timestamp in the stream's time base
	DTS int64

	// Duration is the packet duration in the stream's time base
	Duration int64

	// Data is the encoded payload
	Data []byte
}
