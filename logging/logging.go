// Package logging configures the structured logger shared across the
// collection job and the dashboard server. Unlike a global mutable
// logger, New returns a *logrus.Entry scoped to a service name so tests
// can inject an observable logger and so the server context (per
// spec.md §9) owns its own logger rather than reaching for a package
// global.
package logging

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is one of the standard logging levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config controls how New builds a logger.
type Config struct {
	Level  Level  // minimum level
	Format string // "json" or "text"
	Service string
}

// OutputSplitter routes error-level lines to stderr and everything else
// to stdout, so container log collectors can treat the two streams
// differently.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// New builds a *logrus.Entry pre-tagged with the service name, configured
// per cfg. It is the only place logrus.New is called; callers pass the
// returned entry down through their own structs rather than reading a
// package-level variable.
func New(cfg Config) *logrus.Entry {
	l := logrus.New()
	switch cfg.Level {
	case LevelDebug:
		l.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		l.SetLevel(logrus.WarnLevel)
	case LevelError:
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}
	l.SetOutput(OutputSplitter{})
	return l.WithField("service", cfg.Service)
}
