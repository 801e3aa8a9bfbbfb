// Package logger provides the process wide structured loggers built on log/slog:
// an operational logger and an audit logger backed by a rotating file.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
// Format is json (default) or text; OutputPaths accepts stdout, stderr or file paths.
type Config struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig controls audit log output behaviour. When disabled, audit records
// go to the operational logger.
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	base    *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
)

// Init configures the global loggers and installs the operational logger as the
// slog default. Calling Init again replaces the previous outputs.
func Init(cfg Config) error {
	var opened []io.Closer
	fail := func(err error) error {
		for _, c := range opened {
			_ = c.Close()
		}
		return err
	}

	writer, err := openOutputs(cfg.OutputPaths, &opened)
	if err != nil {
		return fail(err)
	}
	level.Set(parseLevel(cfg.Level))
	opLogger := slog.New(newHandler(cfg.Format, writer, &slog.HandlerOptions{Level: level, AddSource: true}))

	auditLogger := opLogger
	if cfg.Audit.Enabled {
		var closer io.Closer
		auditLogger, closer, err = buildAuditLogger(cfg.Audit)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, closer)
	}

	mu.Lock()
	old := closers
	base, audit, closers = opLogger, auditLogger, opened
	mu.Unlock()

	slog.SetDefault(opLogger)
	for _, c := range old {
		_ = c.Close()
	}
	return nil
}

// SetLevel changes the operational log level at runtime.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func openOutputs(paths []string, opened *[]io.Closer) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, p := range paths {
		switch strings.ToLower(p) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", p, err)
			}
			*opened = append(*opened, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func buildAuditLogger(cfg AuditConfig) (*slog.Logger, io.Closer, error) {
	writer, err := newRotatingWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With(slog.String("stream", "audit")), writer, nil
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// L returns the operational logger, initialising a stdout JSON logger on first use.
func L() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}
	if err := Init(Config{}); err != nil {
		return slog.Default()
	}
	return L()
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	a := audit
	mu.RUnlock()
	if a == nil {
		return L()
	}
	return a
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync closes file outputs. Loggers keep working but writes to closed files are dropped.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, c := range closers {
		err = errors.Join(err, c.Close())
	}
	closers = nil
	return err
}
