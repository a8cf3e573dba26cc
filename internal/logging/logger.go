// Package logging wires zui's structured logging: a slog JSON (or text)
// handler writing to a rotating file, an in-memory ring buffer for crash
// dumps, and an aggregator for noisy events.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Components used as the "component" attribute.
const (
	CompSession = "session"
	CompTmux    = "tmux"
	CompAgent   = "agent"
	CompBridge  = "bridge"
	CompStream  = "stream"
	CompWeb     = "web"
	CompConfig  = "config"
	CompCLI     = "cli"
)

// Config controls Init.
type Config struct {
	// Dir holds debug.log and its rotations. Empty with Debug=false discards logs.
	Dir string

	// Level is "debug", "info" (default), "warn" or "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	MaxSizeMB  int // default 10
	MaxBackups int // default 5
	MaxAgeDays int // default 10
	Compress   bool

	// RingBufferSize is the crash-dump buffer size in bytes (default 4MB).
	RingBufferSize int

	// AggregateIntervalSecs is the event_summary flush interval (default 30).
	AggregateIntervalSecs int

	// Stderr mirrors records to stderr, used by foreground `zui serve`.
	Stderr bool

	// PprofAddr starts net/http/pprof on this address when set.
	PprofAddr string

	Debug bool
}

type state struct {
	logger *slog.Logger
	ring   *RingBuffer
	agg    *Aggregator
	file   *lumberjack.Logger
}

var (
	mu      sync.RWMutex
	current state
	discard = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Init installs the global logger. Calling it again replaces the previous
// configuration after flushing it.
func Init(cfg Config) {
	Shutdown()

	mu.Lock()
	defer mu.Unlock()

	withDefaults(&cfg)

	if !cfg.Debug && cfg.Dir == "" && !cfg.Stderr {
		current = state{
			logger: discard,
			ring:   NewRingBuffer(1024),
			agg:    NewAggregator(nil, cfg.AggregateIntervalSecs),
		}
		return
	}

	ring := NewRingBuffer(cfg.RingBufferSize)
	writers := []io.Writer{ring}

	var file *lumberjack.Logger
	if cfg.Dir != "" {
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "debug.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, file)
	}
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	out := io.MultiWriter(writers...)
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	agg := NewAggregator(logger, cfg.AggregateIntervalSecs)
	agg.Start()

	current = state{logger: logger, ring: ring, agg: agg, file: file}

	if cfg.PprofAddr != "" {
		startPprof(cfg.PprofAddr)
	}
}

func withDefaults(cfg *Config) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 4 * 1024 * 1024
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = 30
	}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the global logger; before Init it discards.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if current.logger == nil {
		return discard
	}
	return current.logger
}

// ForComponent returns a logger tagged with component. The returned logger
// resolves the global handler at log time, so package-level loggers declared
// before Init still reach the configured sinks.
func ForComponent(component string) *slog.Logger {
	return slog.New(&componentHandler{component: component})
}

type componentHandler struct {
	component string
	attrs     []slog.Attr
	groups    []string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	return handler.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// Aggregate counts a high-frequency event; counts are emitted as one
// event_summary record per interval.
func Aggregate(component, event string, attrs ...slog.Attr) {
	mu.RLock()
	agg := current.agg
	mu.RUnlock()
	if agg != nil {
		agg.Record(component, event, attrs...)
	}
}

// DumpRingBuffer writes the most recent log bytes to path.
func DumpRingBuffer(path string) error {
	mu.RLock()
	ring := current.ring
	mu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.DumpToFile(path)
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	if current.agg != nil {
		current.agg.Stop()
	}
	if current.file != nil {
		_ = current.file.Close()
	}
	current = state{}
}
