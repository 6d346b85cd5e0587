package toponym

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogConfig selects the level and output format of the package logger.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

var defaultLogger atomic.Pointer[slog.Logger]

// NewLogger builds a logger writing to stderr. Level is one of debug, info,
// warn or error (info when unrecognised); format "json" selects the JSON
// handler, anything else the text handler.
func NewLogger(cfg LogConfig) *slog.Logger {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLogger replaces the package-level logger. A nil logger restores the
// default.
func SetLogger(l *slog.Logger) {
	defaultLogger.Store(l)
}

// logger returns the package-level logger, falling back to a stderr logger
// configured from LOG_LEVEL and LOG_FORMAT.
func logger() *slog.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := NewLogger(LogConfig{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
	defaultLogger.CompareAndSwap(nil, l)
	return defaultLogger.Load()
}
