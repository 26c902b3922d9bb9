// Package integration provides integration testing utilities for segmux.
package integration

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grafov/m3u8"
)

// TestHarness manages the test environment for integration tests.
type TestHarness struct {
	t          *testing.T
	outDir     string
	serverPort int
	segmuxCmd  *exec.Cmd
	cancel     context.CancelFunc
}

// NewTestHarness creates a new test harness with a fresh output directory.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:          t,
		outDir:     t.TempDir(),
		serverPort: findAvailablePort(t),
	}
}

// OutPath returns a path inside the harness output directory.
func (h *TestHarness) OutPath(name string) string {
	return filepath.Join(h.outDir, name)
}

// RunSegmux runs the segmux binary to completion with the given arguments.
func (h *TestHarness) RunSegmux(args ...string) error {
	h.t.Helper()

	binaryPath := h.findSegmuxBinary()

	cmd := exec.Command(binaryPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	h.t.Logf("Running: segmux %s", strings.Join(args, " "))
	return cmd.Run()
}

// StartSegmux starts the segmux binary in serve mode and waits for its
// HTTP endpoint to come up.
func (h *TestHarness) StartSegmux(args ...string) {
	h.t.Helper()

	binaryPath := h.findSegmuxBinary()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	// Flag parsing stops at the output pattern, so serve flags go first
	args = append([]string{
		"-serve",
		"-bind", fmt.Sprintf("127.0.0.1:%d", h.serverPort),
	}, args...)
	h.segmuxCmd = exec.CommandContext(ctx, binaryPath, args...)

	// Capture output for debugging
	h.segmuxCmd.Stdout = os.Stdout
	h.segmuxCmd.Stderr = os.Stderr

	if err := h.segmuxCmd.Start(); err != nil {
		h.t.Fatalf("failed to start segmux: %v", err)
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", h.serverPort)
	h.waitForServer(healthURL, 10*time.Second)
	h.t.Logf("segmux serving on port %d", h.serverPort)
}

// Fetch performs a GET against the running segmux server and returns the
// response body.
func (h *TestHarness) Fetch(path string) (int, string) {
	h.t.Helper()

	url := fmt.Sprintf("http://127.0.0.1:%d%s", h.serverPort, path)
	resp, err := http.Get(url)
	if err != nil {
		h.t.Fatalf("failed to fetch %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read %s body: %v", path, err)
	}

	return resp.StatusCode, string(body)
}

// ReadSegmentList reads a flat segment list and returns its entries.
func (h *TestHarness) ReadSegmentList(path string) []string {
	h.t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		h.t.Fatalf("failed to read segment list: %v", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// Cleanup stops the running segmux process, if any.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.cancel != nil {
		h.cancel()
	}
	if h.segmuxCmd != nil && h.segmuxCmd.Process != nil {
		h.segmuxCmd.Process.Kill()
		h.segmuxCmd.Wait()
	}
}

// findSegmuxBinary locates the segmux binary.
func (h *TestHarness) findSegmuxBinary() string {
	h.t.Helper()

	// Try several possible locations
	candidates := []string{
		"../../segmux",        // From test/integration
		"./segmux",            // From project root
		"../segmux",           // From test directory
		"./cmd/segmux/segmux", // Built in place
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			h.t.Logf("Found segmux binary at: %s", absPath)
			return absPath
		}
	}

	h.t.Skip("segmux binary not found. Run 'go build -o segmux ./cmd/segmux' first")
	return ""
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// ParsedPlaylist is the decoded form of a produced HLS playlist.
type ParsedPlaylist struct {
	TargetDuration float64
	MediaSequence  uint64
	Segments       []PlaylistSegment
	HasEndList     bool
}

// PlaylistSegment represents a segment in a playlist.
type PlaylistSegment struct {
	Duration float64
	URL      string
}

// ParsePlaylist decodes an HLS media playlist for assertions.
func ParsePlaylist(t *testing.T, content string) *ParsedPlaylist {
	t.Helper()

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		t.Fatalf("failed to parse playlist: %v", err)
	}
	if listType != m3u8.MEDIA {
		t.Fatalf("expected a media playlist, got type %v", listType)
	}
	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		t.Fatal("unexpected playlist type")
	}

	parsed := &ParsedPlaylist{
		TargetDuration: media.TargetDuration,
		MediaSequence:  media.SeqNo,
		HasEndList:     media.Closed,
	}
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		parsed.Segments = append(parsed.Segments, PlaylistSegment{
			Duration: seg.Duration,
			URL:      seg.URI,
		})
	}
	return parsed
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				h.t.Fatalf("timeout waiting for condition: %s", description)
			}
		}
	}
}
