package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a printf-style wrapper around a zerolog logger
type Logger struct {
	zl        zerolog.Logger
	channelID string
}

var (
	output io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	level            = zerolog.InfoLevel
)

// New creates a new logger with the given channel ID
func New(channelID string) *Logger {
	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	if channelID != "" {
		zl = zl.With().Str("channel", channelID).Logger()
	}
	return &Logger{
		zl:        zl,
		channelID: channelID,
	}
}

// Configure sets the output and minimum level used by loggers created afterwards,
// and rebuilds the global logger.
func Configure(w io.Writer, levelName string) {
	if w != nil {
		output = w
	}
	level = ParseLevel(levelName)
	Global = New(Global.channelID)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, v...))
}

// Global logger instance for application-wide logging
var Global = New("")

// SetGlobal sets the global logger
func SetGlobal(logger *Logger) {
	Global = logger
}
