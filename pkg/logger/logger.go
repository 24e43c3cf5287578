// Package logger provides the structured logger shared by the registry, the
// dispute engine and the command-line tooling. It wraps logrus so every entry
// carries the component name.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config configures a Logger.
type Config struct {
	// Component is attached to every entry as the "component" field.
	Component string
	// Level is a logrus level name (trace, debug, info, warn, error). Defaults to info.
	Level string
	// Format is "text" or "json". Defaults to text.
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// Logger is a logrus logger bound to a component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	l := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Logger: l, component: strings.TrimSpace(cfg.Component)}
}

// NewDefault creates an info-level text logger for the named component.
func NewDefault(component string) *Logger {
	return New(Config{Component: component})
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	return New(Config{Output: io.Discard, Level: "panic"})
}

// Named returns a logger sharing the same sink with a different component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) base() *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if l.component != "" {
		entry = entry.WithField("component", l.component)
	}
	return entry
}

// WithField returns an entry carrying the component and the given field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.base().WithField(key, value)
}

// WithFields returns an entry carrying the component and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.base().WithFields(fields)
}

// WithError returns an entry carrying the component and the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base().WithError(err)
}
