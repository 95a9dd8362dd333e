package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingrea/odm-bootstrap/internal/config"
)

// Logger appends structured JSON records to .odm-bootstrap/logs/bootstrap.log
// so users can inspect failures after the terminal output has scrolled away.
type Logger struct {
	*slog.Logger
	file *os.File
	path string
}

// New creates (or reuses) the log file for the given workspace.
func New(workspace, level string) (*Logger, error) {
	logDir := filepath.Join(workspace, config.StateDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "bootstrap.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{Logger: slog.New(NewHandler(f, level)), file: f, path: path}, nil
}

// Discard returns a logger that drops everything. Used when the log file
// cannot be opened and in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

// NewHandler builds the JSON handler used for every log sink: UTC RFC3339
// timestamps, source locations only at debug level.
func NewHandler(w io.Writer, level string) slog.Handler {
	lvl := ParseLevel(level)
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})
}

// ParseLevel maps a --log-level value onto a slog level; unknown values are info.
func ParseLevel(level string) slog.Level {
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

// Path reports the backing file, empty for discard loggers.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
