// Package source generates a synthetic audio/video packet stream for
// driving a segmenter without real media input.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/agleyzer/segmux/pkg/av"
)

const (
	videoClock = 90000
	audioClock = 48000

	// audioFrameSamples is the number of samples carried per audio packet,
	// matching one AAC access unit.
	audioFrameSamples = 1024
)

// Sink receives generated packets in presentation order.
type Sink interface {
	WritePacket(ctx context.Context, pkt *av.Packet) error
}

// Config controls the shape of the generated stream.
type Config struct {
	// Frames is the total number of video frames to emit. Required.
	Frames int

	// FrameRate is the video frame rate in frames per second. Default 30.
	FrameRate int

	// GOPSize is the keyframe interval in frames. Default one second's
	// worth of frames.
	GOPSize int

	// FrameSize is the payload size of a non-key video frame in bytes.
	// Default 4096.
	FrameSize int

	// KeyFrameSize is the payload size of a keyframe in bytes. Default
	// four times FrameSize.
	KeyFrameSize int

	// Audio interleaves a 48kHz audio track with the video.
	Audio bool

	// AudioFrameSize is the payload size of an audio packet in bytes.
	// Default 768.
	AudioFrameSize int

	// Seed makes payload bytes reproducible. Zero seeds from the clock.
	Seed int64

	// Realtime paces emission at the video frame rate instead of running
	// flat out.
	Realtime bool
}

// Generator emits a deterministic packet sequence described by its Config.
type Generator struct {
	cfg    Config
	seed   int64
	logger *slog.Logger
}

// New validates cfg, fills in defaults and returns a generator.
func New(cfg Config, logger *slog.Logger) (*Generator, error) {
	if cfg.Frames <= 0 {
		return nil, fmt.Errorf("source: frame count must be positive, got %d", cfg.Frames)
	}
	if cfg.FrameRate < 0 {
		return nil, fmt.Errorf("source: frame rate cannot be negative, got %d", cfg.FrameRate)
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = 30
	}
	if cfg.GOPSize < 0 {
		return nil, fmt.Errorf("source: GOP size cannot be negative, got %d", cfg.GOPSize)
	}
	if cfg.GOPSize == 0 {
		cfg.GOPSize = cfg.FrameRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}
	if cfg.KeyFrameSize <= 0 {
		cfg.KeyFrameSize = 4 * cfg.FrameSize
	}
	if cfg.AudioFrameSize <= 0 {
		cfg.AudioFrameSize = 768
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Generator{cfg: cfg, seed: seed, logger: logger}, nil
}

// Streams describes the generated tracks, video first.
func (g *Generator) Streams() []av.StreamInfo {
	streams := []av.StreamInfo{
		{Index: 0, Type: av.MediaTypeVideo, Codec: "h264", TimeBase: av.Rational{Num: 1, Den: videoClock}},
	}
	if g.cfg.Audio {
		streams = append(streams, av.StreamInfo{
			Index: 1, Type: av.MediaTypeAudio, Codec: "aac", TimeBase: av.Rational{Num: 1, Den: audioClock},
		})
	}
	return streams
}

// Duration reports the presentation length of the generated stream.
func (g *Generator) Duration() time.Duration {
	return time.Duration(g.cfg.Frames) * time.Second / time.Duration(g.cfg.FrameRate)
}

// Run emits the whole packet sequence into sink in presentation order,
// audio packets interleaved strictly before the video instant they precede.
// It stops early if ctx is cancelled or the sink reports an error.
func (g *Generator) Run(ctx context.Context, sink Sink) error {
	g.logger.Info("generating stream",
		"frames", g.cfg.Frames,
		"frameRate", g.cfg.FrameRate,
		"gopSize", g.cfg.GOPSize,
		"audio", g.cfg.Audio,
		"realtime", g.cfg.Realtime,
		"seed", g.seed,
	)

	rng := rand.New(rand.NewSource(g.seed))

	var ticker *time.Ticker
	if g.cfg.Realtime {
		ticker = time.NewTicker(time.Second / time.Duration(g.cfg.FrameRate))
		defer ticker.Stop()
	}

	var audioPTS int64
	for frame := 0; frame < g.cfg.Frames; frame++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		pts := g.videoPTS(frame)
		if g.cfg.Audio {
			var err error
			audioPTS, err = g.emitAudioBefore(ctx, sink, rng, audioPTS, pts)
			if err != nil {
				return err
			}
		}

		key := frame%g.cfg.GOPSize == 0
		size := g.cfg.FrameSize
		if key {
			size = g.cfg.KeyFrameSize
		}
		pkt := &av.Packet{
			StreamIndex: 0,
			IsKeyFrame:  key,
			PTS:         pts,
			DTS:         pts,
			Duration:    g.videoPTS(frame+1) - pts,
			Data:        payload(rng, size),
		}
		if err := sink.WritePacket(ctx, pkt); err != nil {
			return fmt.Errorf("source: frame %d: %w", frame, err)
		}
	}

	// Let the audio track run out to the end of the last video frame.
	if g.cfg.Audio {
		if _, err := g.emitAudioBefore(ctx, sink, rng, audioPTS, g.videoPTS(g.cfg.Frames)); err != nil {
			return err
		}
	}

	g.logger.Info("stream complete",
		"frames", g.cfg.Frames,
		"duration", g.Duration(),
	)
	return nil
}

// emitAudioBefore delivers audio packets whose presentation time falls
// strictly before the given video instant and returns the next audio pts.
func (g *Generator) emitAudioBefore(ctx context.Context, sink Sink, rng *rand.Rand, audioPTS, videoPTS int64) (int64, error) {
	videoTB := av.Rational{Num: 1, Den: videoClock}
	audioTB := av.Rational{Num: 1, Den: audioClock}

	for av.CompareTS(audioPTS, audioTB, videoPTS, videoTB) < 0 {
		pkt := &av.Packet{
			StreamIndex: 1,
			IsKeyFrame:  true,
			PTS:         audioPTS,
			DTS:         audioPTS,
			Duration:    audioFrameSamples,
			Data:        payload(rng, g.cfg.AudioFrameSize),
		}
		if err := sink.WritePacket(ctx, pkt); err != nil {
			return audioPTS, fmt.Errorf("source: audio at pts %d: %w", audioPTS, err)
		}
		audioPTS += audioFrameSamples
	}
	return audioPTS, nil
}

func (g *Generator) videoPTS(frame int) int64 {
	return int64(frame) * videoClock / int64(g.cfg.FrameRate)
}

func payload(rng *rand.Rand, size int) []byte {
	buf := make([]byte, size)
	rng.Read(buf)
	return buf
}
