package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes the supervisor's own log output and the capture
// destination for worker stdout/stderr. When File is empty the supervisor
// logs to stderr; when Dir is set each worker gets Dir/<id>.stdout.log and
// Dir/<id>.stderr.log, rotated with lumberjack semantics.
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	Color      bool   `mapstructure:"color"`
	File       string `mapstructure:"file"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// NewSlogger builds a slog.Logger per the config. Callers that want it
// process-wide pass it to slog.SetDefault themselves.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}

	var w io.Writer = os.Stderr
	if c.File != "" {
		w = c.rotating(c.File)
	}

	var h slog.Handler
	switch {
	case strings.EqualFold(c.Format, "json"):
		h = slog.NewJSONHandler(w, opts)
	case c.Color && c.File == "":
		h = NewColorTextHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Writers returns rotated stdout and stderr write-closers for one worker.
// Both are nil when no capture directory is configured.
func (c Config) Writers(id string) (io.WriteCloser, io.WriteCloser, error) {
	if c.Dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	out := c.rotating(filepath.Join(c.Dir, id+".stdout.log"))
	errW := c.rotating(filepath.Join(c.Dir, id+".stderr.log"))
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

// ParseLevel maps a config level string onto slog levels, defaulting to info.
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

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
