package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/JustinOng/esp-32-audio/internal/audio"
	"github.com/JustinOng/esp-32-audio/internal/config"
	"github.com/JustinOng/esp-32-audio/internal/metrics"
	"github.com/JustinOng/esp-32-audio/internal/sender"
	"github.com/JustinOng/esp-32-audio/internal/server"
)

const (
	serviceName    = "wavsend"
	serviceVersion = "1.0.0"

	shutdownTimeout = 5 * time.Second
)

// usageError marks invalid invocations, which exit with status 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()

	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		return 2
	default:
		return 1
	}
}

// invocation holds the positional arguments
type invocation struct {
	path string
	host string
	port int
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <wav-file-path> <destination-ip> <destination-port>\n\nFlags:\n", serviceName)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "Path to configuration file")
	chunkSize := fs.Int("chunk-size", 0, "Payload bytes per datagram (default from config, 1024)")
	maxBytes := fs.Uint64("max-bytes", 0, "Send at most this many bytes of the data chunk, 0 sends all")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	hexDump := fs.Bool("hex", false, "Log every datagram as hex at debug level")
	enableMetrics := fs.Bool("metrics", false, "Serve status and Prometheus metrics over HTTP during the transfer")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &usageError{msg: err.Error()}
	}

	inv, err := parseInvocation(fs.Args())
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		fs.Usage()
		return err
	}

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
			return err
		}
	}

	// Flags override the file only when given explicitly
	var overrideErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chunk-size":
			cfg.Sender.ChunkSize = *chunkSize
		case "max-bytes":
			if *maxBytes > math.MaxUint32 {
				overrideErr = &usageError{msg: fmt.Sprintf("-max-bytes must not exceed %d", uint64(math.MaxUint32))}
				return
			}
			cfg.Sender.MaxPayloadBytes = uint32(*maxBytes)
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "hex":
			cfg.Sender.HexDump = *hexDump
		case "metrics":
			cfg.Metrics.Enabled = *enableMetrics
		}
	})
	if overrideErr != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, overrideErr)
		return overrideErr
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return &usageError{msg: err.Error()}
	}

	// Initialize logger based on configuration
	logger, closeLog := initLogger(cfg.Logging, stderr)
	defer closeLog()

	logger.Info("Sender starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("file", inv.path),
		slog.String("destination", net.JoinHostPort(inv.host, strconv.Itoa(inv.port))),
		slog.Int("chunk_size", cfg.Sender.ChunkSize),
		slog.Uint64("max_payload_bytes", uint64(cfg.Sender.MaxPayloadBytes)),
		slog.Bool("pad_odd_chunks", cfg.Reader.PadOddChunks),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	tracker := server.NewTracker(inv.path, net.JoinHostPort(inv.host, strconv.Itoa(inv.port)))

	// Initialize status server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.Metrics.Enabled {
		httpServer = server.NewHTTPServer(logger, cfg, tracker, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start status server", slog.String("error", err.Error()))
			return err
		}
	}

	err = transfer(ctx, logger, cfg, inv, appMetrics, tracker)
	tracker.Finish(err)

	if httpServer != nil {
		linger(ctx, logger, cfg.Metrics.GetLinger())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("Error stopping status server", slog.String("error", stopErr.Error()))
		}
	}

	if err != nil {
		logger.Error("Transfer failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Done")
	return nil
}

// parseInvocation validates the three positional arguments
func parseInvocation(args []string) (invocation, error) {
	if len(args) != 3 {
		return invocation{}, &usageError{msg: fmt.Sprintf("expected 3 arguments, got %d", len(args))}
	}

	port, err := strconv.Atoi(args[2])
	if err != nil || port < 1 || port > 65535 {
		return invocation{}, &usageError{msg: fmt.Sprintf("invalid destination port %q", args[2])}
	}

	if args[1] == "" {
		return invocation{}, &usageError{msg: "destination host cannot be empty"}
	}

	return invocation{path: args[0], host: args[1], port: port}, nil
}

// transfer parses the WAV file up to its data chunk and sends the payload
func transfer(ctx context.Context, logger *slog.Logger, cfg *config.Config, inv invocation, m *metrics.Metrics, tracker *server.Tracker) error {
	file, err := os.Open(inv.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", inv.path, err)
	}
	defer file.Close()

	reader := audio.NewReader(bufio.NewReader(file), audio.ReaderOptions{
		PadOddChunks: cfg.Reader.PadOddChunks,
	}, logger)
	reader.SetObserver(m)

	data, err := reader.ReadUntilData()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", inv.path, err)
	}
	tracker.SetDataChunk(data)

	fragmenter, err := sender.Dial(ctx, inv.host, inv.port, sender.Config{
		ChunkSize:       cfg.Sender.ChunkSize,
		MaxPayloadBytes: cfg.Sender.MaxPayloadBytes,
		WriteTimeout:    cfg.Sender.GetWriteTimeout(),
		HexDump:         cfg.Sender.HexDump,
	}, logger)
	if err != nil {
		return err
	}
	defer fragmenter.Close()

	fragmenter.SetRecorder(m)
	tracker.AttachSender(fragmenter)

	sendErr := fragmenter.Send(ctx, data.R, data.Size)

	// Get final statistics
	stats := fragmenter.GetStatistics()
	logger.Info("Final sender statistics",
		slog.Uint64("datagrams_sent", stats.DatagramsSent),
		slog.Uint64("payload_bytes_sent", stats.PayloadBytesSent),
		slog.Uint64("target_bytes", stats.TargetBytes),
		slog.Uint64("last_sequence", uint64(stats.LastSequence)),
		slog.Uint64("send_errors", stats.SendErrors),
		slog.Bool("truncated", stats.Truncated),
		slog.Duration("elapsed", stats.Elapsed),
		slog.Duration("audio_duration", data.Format.Duration(uint32(stats.PayloadBytesSent))),
	)

	return sendErr
}

// linger keeps the status server reachable after the transfer so it can be scraped
func linger(ctx context.Context, logger *slog.Logger, d time.Duration) {
	if d <= 0 {
		return
	}

	logger.Info("Keeping status server up", slog.Duration("linger", d))

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, func()) {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output io.Writer
	closeFn := func() {}
	switch cfg.Output {
	case "stderr", "":
		output = stderr
	case "stdout":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = stderr
		} else {
			output = file
			closeFn = func() { file.Close() }
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closeFn
}
