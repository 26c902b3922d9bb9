package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agleyzer/segmux/internal/segmenter"
)

// Server serves produced segments, run health and metrics over HTTP
type Server struct {
	dir        string
	bind       string
	stats      func() segmenter.Stats
	logger     *slog.Logger
	registry   *prometheus.Registry
	httpServer *http.Server
}

// New creates a new HTTP server rooted at the segment output directory.
// stats is polled on every health and metrics request.
func New(dir, bind string, stats func() segmenter.Stats, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "segmux_segments_started_total",
			Help: "Segments started since the run began",
		}, func() float64 { return float64(stats().SegmentsStarted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "segmux_segments_completed_total",
			Help: "Segments finalized since the run began",
		}, func() float64 { return float64(stats().SegmentsCompleted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "segmux_packets_written_total",
			Help: "Packets delivered to segment writers",
		}, func() float64 { return float64(stats().PacketsWritten) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "segmux_bytes_written_total",
			Help: "Payload bytes delivered to segment writers",
		}, func() float64 { return float64(stats().BytesWritten) }),
	)

	return &Server{
		dir:      dir,
		bind:     bind,
		stats:    stats,
		logger:   logger,
		registry: registry,
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.bind,
		Handler: s.loggingMiddleware(s.handler()),
	}

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.bind, "dir", s.dir)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handler builds the route table
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/", s.segmentHeaders(http.FileServer(http.Dir(s.dir))))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return mux
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"stats":  s.stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// segmentHeaders sets playback-friendly headers on served files
func (s *Server) segmentHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// Playlists must never be cached; players poll them for updates
		if strings.EqualFold(filepath.Ext(r.URL.Path), ".m3u8") {
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", duration,
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
