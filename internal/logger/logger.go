package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the supervisor's own log and the optional per-instance
// output files. Rotation parameters follow lumberjack semantics.
type Config struct {
	Level   string `mapstructure:"level"`    // debug, info, warn, error
	File    string `mapstructure:"file"`     // supervisor log file, in addition to the console
	NoColor bool   `mapstructure:"no_color"` // plain text console output

	// Dir enables <Dir>/<instance>.stdout.log and .stderr.log for workers.
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds the supervisor logger writing to console. When c.File is set the
// same records also go, uncolored, to a rotated file. The returned closer
// releases that file.
func New(c Config, console io.Writer) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}
	var h slog.Handler
	if c.NoColor {
		h = slog.NewTextHandler(console, opts)
	} else {
		h = NewColorTextHandler(console, opts, true)
	}
	if c.File == "" {
		return slog.New(h), nopCloser{}
	}
	_ = os.MkdirAll(filepath.Dir(c.File), 0o750)
	fw := c.rotating(c.File)
	return slog.New(fanout{h, slog.NewTextHandler(fw, opts)}), fw
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Writers returns rotated writers for an instance's stdout and stderr, or
// nils when no Dir is configured.
func (c Config) Writers(instance string) (io.WriteCloser, io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if instance == "" || strings.ContainsAny(instance, `/\`) {
		return nil, nil, fmt.Errorf("invalid instance name for log file: %q", instance)
	}
	if err := os.MkdirAll(c.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	out := c.rotating(filepath.Join(c.Dir, instance+".stdout.log"))
	errW := c.rotating(filepath.Join(c.Dir, instance+".stderr.log"))
	return out, errW, nil
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to all handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
