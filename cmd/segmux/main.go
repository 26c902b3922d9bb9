// The segmux command splits a generated media stream into fixed-duration
// container segments and maintains a segment list for playback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/agleyzer/segmux/internal/config"
	"github.com/agleyzer/segmux/internal/format"
	"github.com/agleyzer/segmux/internal/journal"
	"github.com/agleyzer/segmux/internal/logging"
	"github.com/agleyzer/segmux/internal/segmenter"
	"github.com/agleyzer/segmux/internal/server"
	"github.com/agleyzer/segmux/internal/source"
)

const (
	version = "0.1.0"
)

func main() {
	// Parse command-line flags
	var (
		configPath  = flag.String("config", "", "Path to a TOML configuration file")
		initConfig  = flag.String("init-config", "", "Write a sample configuration file to the given path and exit")
		listFormats = flag.Bool("list-formats", false, "List the available segment formats and exit")

		formatName  = flag.String("format", "", "Segment container format (default: inferred from the output pattern)")
		segmentTime = flag.Float64("time", segmenter.DefaultSegmentTime, "Target segment duration in seconds")
		listPath    = flag.String("list", "", "Segment list path (.m3u8 selects an HLS playlist)")
		listType    = flag.String("list-type", "", "Segment list flavor: flat or m3u8 (default: inferred from -list)")
		listSize    = flag.Int("list-size", segmenter.DefaultListSize, "Maximum segment list entries, 0 keeps all")
		wrap        = flag.Int("wrap", 0, "Segment numbering modulus, 0 never wraps")
		validFrames = flag.String("valid-frames", "", "Comma-separated ascending frame counts that alone may end a segment")

		frames   = flag.Int("frames", 300, "Total video frames to generate")
		fps      = flag.Int("fps", 30, "Video frame rate")
		gop      = flag.Int("gop", 0, "Keyframe interval in frames, 0 means one second")
		audio    = flag.Bool("audio", false, "Interleave a 48kHz audio track")
		seed     = flag.Int64("seed", 0, "Payload randomness seed, 0 seeds from the clock")
		realtime = flag.Bool("realtime", false, "Pace generation at the configured frame rate")

		serve       = flag.Bool("serve", false, "Serve the output directory, /health and /metrics over HTTP")
		bind        = flag.String("bind", ":8080", "HTTP server bind address")
		journalPath = flag.String("journal", "", "Record finished segments in a SQLite database at the given path")

		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		logFormat   = flag.String("log-format", "", "Log output format: text, json or auto")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "segmux - stream segmenter v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <output-pattern>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Arguments:\n")
		fmt.Fprintf(os.Stderr, "  <output-pattern>    segment filename template with exactly one %%d\n")
		fmt.Fprintf(os.Stderr, "                      placeholder (e.g. 'seg_%%03d.dat', 'out/chunk_%%d.crc')\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s seg_%%03d.dat\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -time 4 -list segments.txt -frames 600 seg_%%d.dat\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -format framecrc -valid-frames 0,150,300 seg_%%d.dat\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serve -realtime -list out/live.m3u8 out/seg_%%05d.dat\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -list-formats\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("segmux v%s\n", version)
		os.Exit(0)
	}

	if *initConfig != "" {
		if err := config.CreateSample(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *initConfig)
		os.Exit(0)
	}

	if *listFormats {
		fmt.Println(renderFormats())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags set on the command line override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Output.Format = *formatName
		case "time":
			cfg.Output.SegmentTime = *segmentTime
		case "list":
			cfg.Output.List = *listPath
		case "list-type":
			cfg.Output.ListType = *listType
		case "list-size":
			cfg.Output.ListSize = *listSize
		case "wrap":
			cfg.Output.Wrap = *wrap
		case "valid-frames":
			cfg.Output.ValidFrames = *validFrames
		case "frames":
			cfg.Source.Frames = *frames
		case "fps":
			cfg.Source.FrameRate = *fps
		case "gop":
			cfg.Source.GOPSize = *gop
		case "audio":
			cfg.Source.Audio = *audio
		case "seed":
			cfg.Source.Seed = *seed
		case "realtime":
			cfg.Source.Realtime = *realtime
		case "serve":
			cfg.Server.Enabled = *serve
		case "bind":
			cfg.Server.Bind = *bind
		case "journal":
			cfg.Journal.Enabled = *journalPath != ""
			cfg.Journal.Path = *journalPath
		}
	})

	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected a single output pattern, got %d arguments\n\n", flag.NArg())
		flag.Usage()
		os.Exit(1)
	}
	if flag.NArg() == 1 {
		cfg.Output.Pattern = flag.Arg(0)
	} else if *configPath == "" {
		fmt.Fprintf(os.Stderr, "Error: output pattern is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logLevel := cfg.Log.Level
	if *verbose {
		logLevel = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger, err := logging.New(logging.Options{Level: logLevel, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("segmux starting", "version", version)

	// Run the application
	if err := run(cfg, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}

	logger.Info("segmux stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	runID := uuid.NewString()

	outDir := filepath.Dir(cfg.Output.Pattern)
	if outDir != "." {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	// One live run per output directory: a second instance would clobber
	// the first one's segments and list.
	lock := flock.New(filepath.Join(outDir, ".segmux.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("output directory %s is in use by another segmux instance", outDir)
	}
	defer lock.Unlock()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	var store *journal.Store
	if cfg.Journal.Enabled {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()
		logger.Info("journal open", "path", cfg.Journal.Path, "run", runID)
	}

	onSegmentEnd := func(info segmenter.SegmentInfo) {
		logger.Info("segment ready",
			"segment", info.Path,
			"seq", info.Seq,
			"packets", info.Packets,
			"bytes", info.Bytes,
			"seconds", info.End-info.Start,
		)
		if store == nil {
			return
		}
		entry := journal.Entry{
			Run:     runID,
			Seq:     info.Seq,
			Number:  info.Number,
			Path:    info.Path,
			Packets: info.Packets,
			Bytes:   info.Bytes,
			Start:   info.Start,
			End:     info.End,
		}
		if err := store.Record(ctx, entry); err != nil {
			logger.Error("journal write failed", "segment", info.Path, "error", err)
		}
	}

	mux, err := segmenter.New(segmenter.Config{
		Pattern:      cfg.Output.Pattern,
		Format:       cfg.Output.Format,
		SegmentTime:  cfg.Output.SegmentTime,
		ListPath:     cfg.Output.List,
		ListType:     cfg.Output.ListType,
		ListSize:     cfg.Output.ListSize,
		Wrap:         cfg.Output.Wrap,
		ValidFrames:  cfg.Output.ValidFrames,
		OnSegmentEnd: onSegmentEnd,
	}, logger)
	if err != nil {
		return err
	}

	gen, err := source.New(source.Config{
		Frames:    cfg.Source.Frames,
		FrameRate: cfg.Source.FrameRate,
		GOPSize:   cfg.Source.GOPSize,
		FrameSize: cfg.Source.FrameSize,
		Audio:     cfg.Source.Audio,
		Seed:      cfg.Source.Seed,
		Realtime:  cfg.Source.Realtime,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		srv := server.New(outDir, cfg.Server.Bind, mux.Stats, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()
		logger.Info("segments served over HTTP",
			"addr", cfg.Server.Bind,
			"health", "/health",
			"metrics", "/metrics",
		)
	}

	if err := mux.WriteHeader(ctx, gen.Streams()); err != nil {
		return err
	}

	runErr := gen.Run(ctx, mux)
	if errors.Is(runErr, context.Canceled) {
		// An interrupted run still finalizes the open segment below.
		logger.Info("generation interrupted")
		runErr = nil
	}
	if err := mux.WriteTrailer(); err != nil && runErr == nil {
		if !errors.Is(err, segmenter.ErrNotOpen) {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr
	}

	stats := mux.Stats()
	logger.Info("run complete",
		"run", runID,
		"segments", stats.SegmentsCompleted,
		"packets", stats.PacketsWritten,
		"bytes", stats.BytesWritten,
	)

	if cfg.Server.Enabled && ctx.Err() == nil {
		logger.Info("serving until interrupted", "addr", cfg.Server.Bind)
		<-ctx.Done()
	}
	return nil
}

// renderFormats lists the built-in segment formats as a table.
func renderFormats() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Extensions", "Description"})
	for _, f := range format.Builtin().Formats() {
		tw.AppendRow(table.Row{f.Name, strings.Join(f.Extensions, ", "), f.Description})
	}
	return tw.Render()
}
