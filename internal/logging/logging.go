package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a structured logger that writes to the console.
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new Logger at info level.
func NewLogger() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{Logger: l}
}

// NewDiscardLogger returns a Logger that drops everything. Used in tests and
// by commands that print their own output on stdout.
func NewDiscardLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// SetLevel parses level ("debug", "info", ...) and applies it.
func (l *Logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	l.Logger.SetLevel(lvl)
	return nil
}

// Info logs an informational message with key/value pairs.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.entry(args).Info(msg)
}

// Warn logs a warning message with key/value pairs.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.entry(args).Warn(msg)
}

// Error logs an error message with key/value pairs.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.entry(args).Error(msg)
}

// Debug logs a debug message with key/value pairs.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.entry(args).Debug(msg)
}

// entry turns alternating key/value args into logrus fields. A trailing key
// without value is kept under "extra".
func (l *Logger) entry(args []interface{}) *logrus.Entry {
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["extra"] = args[i]
			break
		}
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	return l.Logger.WithFields(fields)
}
