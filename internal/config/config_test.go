package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/agleyzer/segmux/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "segmux.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Output.Pattern != "seg_%03d.dat" {
		t.Errorf("pattern = %q", cfg.Output.Pattern)
	}
	if cfg.Output.SegmentTime != 2.0 {
		t.Errorf("segment_time = %v, expected 2.0", cfg.Output.SegmentTime)
	}
	if cfg.Output.ListSize != 5 {
		t.Errorf("segment_list_size = %d, expected 5", cfg.Output.ListSize)
	}
	if cfg.Source.Frames != 300 || cfg.Source.FrameRate != 30 {
		t.Errorf("source defaults = %+v", cfg.Source)
	}
	if cfg.Server.Enabled || cfg.Server.Bind != ":8080" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, expected info", cfg.Log.Level)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[output]
pattern = "chunk_%05d.ts"
segment_time = 4.5

[source]
frames = 60
audio = true

[log]
level = "debug"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Output.Pattern != "chunk_%05d.ts" {
		t.Errorf("pattern = %q", cfg.Output.Pattern)
	}
	if cfg.Output.SegmentTime != 4.5 {
		t.Errorf("segment_time = %v, expected 4.5", cfg.Output.SegmentTime)
	}
	// Untouched keys keep their defaults.
	if cfg.Output.ListSize != 5 {
		t.Errorf("segment_list_size = %d, expected the default 5", cfg.Output.ListSize)
	}
	if cfg.Source.Frames != 60 || !cfg.Source.Audio {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.FrameRate != 30 {
		t.Errorf("frame_rate = %d, expected the default 30", cfg.Source.FrameRate)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, expected debug", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "[output\npattern=")
	if _, err := config.Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"explicit zero segment_time",
			"[output]\nsegment_time = 0.0\n",
			"segment_time",
		},
		{
			"negative wrap",
			"[output]\nsegment_wrap = -1\n",
			"segment_wrap",
		},
		{
			"zero frames",
			"[source]\nframes = 0\n",
			"frames",
		},
		{
			"server without bind",
			"[server]\nenabled = true\nbind = \"\"\n",
			"bind",
		},
		{
			"journal without path",
			"[journal]\nenabled = true\npath = \"\"\n",
			"path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := config.Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "segmux.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	// The sample documents the defaults, so loading it must reproduce
	// them exactly.
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	want := config.Default()
	if !reflect.DeepEqual(*cfg, want) {
		t.Errorf("sample config = %+v, expected the defaults %+v", *cfg, want)
	}

	if err := config.CreateSample(path); err == nil {
		t.Error("CreateSample overwrote an existing file")
	}
}
