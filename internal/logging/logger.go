// Package logging builds the structured logger shared by every component.
//
// Usage:
//
//	log := logging.New("guidevault", "debug", "json")
//	log.WithField("source_id", id).Info("refresh complete")
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logrus logger for a named service. Output is JSON to stdout
// unless format is "text". An empty or unknown level means info. The service
// field is embedded in every log line.
func New(service, level, format string) *logrus.Entry {
	return NewWithOutput(service, level, format, os.Stdout)
}

// NewWithOutput is New writing to w.
func NewWithOutput(service, level, format string, w io.Writer) *logrus.Entry {
	log := logrus.New()
	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	log.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil || level == "" {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log.WithField("service", service)
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *logrus.Entry {
	return NewWithOutput("test", "panic", "json", io.Discard)
}
