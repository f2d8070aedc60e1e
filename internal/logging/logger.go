package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"loopdeck/internal/config"
)

// Rotation bounds a file output. Zero values leave lumberjack's defaults.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Options describes one logger. Outputs holds "stdout", "stderr" or file
// paths; the default is stdout.
type Options struct {
	Level       string
	Format      string
	Outputs     []string
	Development bool
	Rotation    Rotation
}

// New builds a logger writing every record to each output.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	w, tty, err := opts.writer()
	if err != nil {
		return nil, err
	}
	addSource := opts.Development || level <= slog.LevelDebug

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		return slog.New(newConsoleHandler(w, level, addSource, tty)), nil
	case "json":
		return slog.New(newJSONHandler(w, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewDaemonLogger logs to stdout and the rotated daemon log file.
func NewDaemonLogger(cfg *config.Config, levelOverride string, development bool) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if strings.TrimSpace(levelOverride) != "" {
		level = levelOverride
	}
	return New(Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Outputs:     []string{"stdout", cfg.DaemonLogPath()},
		Development: development,
		Rotation:    rotationFrom(cfg),
	})
}

// NewCommandLogger builds the logger for CLI commands that do pipeline work
// without the daemon. Records go to the daemon log file so `loopdeck logs`
// shows them next to daemon output; only warnings and errors reach stderr.
func NewCommandLogger(cfg *config.Config, component string) (*slog.Logger, error) {
	console, err := New(Options{Level: "warn", Outputs: []string{"stderr"}})
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Paths.LogDir == "" {
		return NewComponentLogger(console, component), nil
	}
	file, err := New(Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Outputs:  []string{cfg.DaemonLogPath()},
		Rotation: rotationFrom(cfg),
	})
	if err != nil {
		return nil, err
	}
	return NewComponentLogger(slog.New(fanout{file.Handler(), console.Handler()}), component), nil
}

func rotationFrom(cfg *config.Config) Rotation {
	return Rotation{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.RetentionDays,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// writer opens each distinct output once. The result is a terminal only
// when every output is one, which is what enables color.
func (o Options) writer() (io.Writer, bool, error) {
	outputs := o.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	var writers []io.Writer
	tty := true
	seen := make(map[string]bool, len(outputs))
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" || seen[out] {
			continue
		}
		seen[out] = true
		switch out {
		case "stdout":
			writers = append(writers, os.Stdout)
			tty = tty && isTerminal(os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
			tty = tty && isTerminal(os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, false, fmt.Errorf("create log directory: %w", err)
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   out,
				MaxSize:    o.Rotation.MaxSizeMB,
				MaxBackups: o.Rotation.MaxBackups,
				MaxAge:     o.Rotation.MaxAgeDays,
			})
			tty = false
		}
	}
	if len(writers) == 1 {
		return writers[0], tty, nil
	}
	return io.MultiWriter(writers...), tty, nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
