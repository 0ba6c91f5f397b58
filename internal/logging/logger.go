// Package logging wraps log/slog with the fields the core's operations
// want on every line: channel, change_id, verb.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level mirrors slog's levels under names that read naturally at call
// sites (logging.INFO rather than slog.LevelInfo).
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	OutputFile string // path to log file; empty = stdout only
	JSONFormat bool   // JSON lines instead of text
	AddSource  bool   // include source file:line
}

// Logger wraps slog.Logger with a handle to the backing file so it can
// be closed on shutdown.
type Logger struct {
	slog *slog.Logger
	file *os.File
	mu   sync.Mutex
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Initialize sets up the process-wide logger. Must be called before
// any package-level logging.* helper is used; safe to call more than
// once, only the first call takes effect.
func Initialize(cfg Config) error {
	var initErr error
	globalOnce.Do(func() {
		l, err := New(cfg)
		if err != nil {
			initErr = fmt.Errorf("initialize logger: %w", err)
			return
		}
		global = l
	})
	return initErr
}

// New builds a standalone Logger (used directly by tests and by
// components that want a scoped logger rather than the global one).
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	writers = append(writers, os.Stdout)

	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", cfg.OutputFile, err)
		}
		file = f
		writers = append(writers, f)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     cfg.Level.slogLevel(),
		AddSource: cfg.AddSource,
	}

	var w io.Writer = io.MultiWriter(writers...)
	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return &Logger{slog: slog.New(handler), file: file}, nil
}

// Global returns the process-wide logger, falling back to a stdout
// text logger at INFO level if Initialize was never called.
func Global() *Logger {
	if global == nil {
		l, _ := New(Config{Level: INFO})
		return l
	}
	return global
}

// Close releases the backing log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// With returns a child logger carrying the given structured fields on
// every subsequent line, e.g. logger.With("channel", name, "change_id", id).
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.slog.Error(msg, args...) }
