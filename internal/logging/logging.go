// Package logging builds the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out (stdout when nil). Unknown levels fall
// back to info; format "json" selects the JSON formatter, anything else text.
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Component scopes a logger to one subsystem. A nil logger yields a
// discarding one so callers never need nil checks.
func Component(l logrus.FieldLogger, name string) logrus.FieldLogger {
	if l == nil {
		d := logrus.New()
		d.SetOutput(io.Discard)
		l = d
	}
	return l.WithField("component", name)
}
