// Package config loads and validates the segmux configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Output configures segment production.
type Output struct {
	// Pattern is the segment filename template with one %d placeholder.
	Pattern string `toml:"pattern"`

	// Format names the container format. Empty infers it from Pattern.
	Format string `toml:"segment_format"`

	// SegmentTime is the target segment length in seconds.
	SegmentTime float64 `toml:"segment_time"`

	// List is the segment list path. Empty disables the list.
	List string `toml:"segment_list"`

	// ListType selects the list flavor, flat or m3u8. Empty infers it
	// from the List extension.
	ListType string `toml:"segment_list_type"`

	// ListSize bounds the list. Zero keeps every entry.
	ListSize int `toml:"segment_list_size"`

	// Wrap is the filename numbering modulus. Zero never wraps.
	Wrap int `toml:"segment_wrap"`

	// ValidFrames restricts splits to the listed video frame counts.
	ValidFrames string `toml:"segment_valid_frames"`
}

// Source configures the synthetic packet generator.
type Source struct {
	Frames    int   `toml:"frames"`
	FrameRate int   `toml:"frame_rate"`
	GOPSize   int   `toml:"gop_size"`
	FrameSize int   `toml:"frame_size"`
	Audio     bool  `toml:"audio"`
	Seed      int64 `toml:"seed"`
	Realtime  bool  `toml:"realtime"`
}

// Server configures the built-in HTTP server for segments and health.
type Server struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Journal configures the segment journal database.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures log output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for segmux.
type Config struct {
	Output  Output  `toml:"output"`
	Source  Source  `toml:"source"`
	Server  Server  `toml:"server"`
	Journal Journal `toml:"journal"`
	Log     Log     `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output: Output{
			Pattern:     "seg_%03d.dat",
			SegmentTime: 2.0,
			ListSize:    5,
		},
		Source: Source{
			Frames:    300,
			FrameRate: 30,
		},
		Server: Server{
			Bind: ":8080",
		},
		Journal: Journal{
			Path: "segments.db",
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the configuration file at path over the defaults and
// validates the result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that hold across every run mode.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Pattern) == "" {
		return fmt.Errorf("output.pattern is required")
	}
	if c.Output.SegmentTime <= 0 {
		return fmt.Errorf("output.segment_time must be positive, got %v", c.Output.SegmentTime)
	}
	if c.Output.ListSize < 0 {
		return fmt.Errorf("output.segment_list_size cannot be negative, got %d", c.Output.ListSize)
	}
	if c.Output.Wrap < 0 {
		return fmt.Errorf("output.segment_wrap cannot be negative, got %d", c.Output.Wrap)
	}
	if c.Source.Frames <= 0 {
		return fmt.Errorf("source.frames must be positive, got %d", c.Source.Frames)
	}
	if c.Source.FrameRate <= 0 {
		return fmt.Errorf("source.frame_rate must be positive, got %d", c.Source.FrameRate)
	}
	if c.Server.Enabled && strings.TrimSpace(c.Server.Bind) == "" {
		return fmt.Errorf("server.bind is required when the server is enabled")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return nil
}

// CreateSample writes a documented sample configuration to path. It
// refuses to overwrite an existing file.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
