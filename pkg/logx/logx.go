// Package logx configures the process-wide zerolog logger.
//
// Services receive a zerolog.Logger value and derive component loggers with
// With().Str("component", ...). The zero value of zerolog.Logger writes to
// nothing, so constructors may be called before logging is configured.
package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// Level is one of trace|debug|info|warn|error. Empty means info.
	Level string `yaml:"level"`
	// Console enables the human-readable console writer on stderr.
	// When false, output is JSON.
	Console bool       `yaml:"console"`
	File    FileConfig `yaml:"file"`
}

type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the root logger. The file sink, when enabled, always receives
// JSON regardless of the console setting.
func New(cfg Config) (zerolog.Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat})
	} else {
		sinks = append(sinks, os.Stderr)
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return zerolog.Nop(), err
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		sinks = append(sinks, f)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := sinks[0]
	if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Nop returns a logger that never writes anything.
func Nop() zerolog.Logger { return zerolog.Nop() }

func parseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}
