package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process zerolog instance and the file it writes to.
type Logger struct {
	logger zerolog.Logger
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	Level     string `json:"level" mapstructure:"level"`             // debug, info, warn, error
	Dir       string `json:"dir" mapstructure:"dir"`                 // per-run log files, empty disables file output
	Console   bool   `json:"console" mapstructure:"console"`         // enable console output
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`           // human readable console output
	Redaction bool   `json:"redaction" mapstructure:"redaction"`     // mask credentials before writing
	MaxSizeMB int    `json:"max_size_mb" mapstructure:"max_size_mb"` // rotate after this many MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`         // days to keep rotated files
	Compress  bool   `json:"compress" mapstructure:"compress"`       // gzip rotated files
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Dir:       "hybrid_logs",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSizeMB: 50,
		MaxAge:    7,
		Compress:  true,
	}
}

// RunLogName returns the file name used for a process started at t.
func RunLogName(t time.Time) string {
	return fmt.Sprintf("run_%s.log", t.Format("20060102_150405"))
}

// New builds the logger and installs it as the zerolog global.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		var console io.Writer = os.Stdout
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	var closer io.Closer
	if cfg.Dir != "" {
		rw, err := NewRotatingWriter(filepath.Join(cfg.Dir, RunLogName(time.Now())), cfg.MaxSizeMB, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, rw)
		closer = rw
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	return &Logger{logger: logger, closer: closer}, nil
}

// Zerolog returns the underlying zerolog.Logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
