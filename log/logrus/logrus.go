// Package logrus adapts a logrus entry to syncache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/syncache"
)

var _ syncache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l; a nil l uses logrus.StandardLogger().
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f syncache.Fields) { l.E.WithFields(fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f syncache.Fields)  { l.E.WithFields(fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f syncache.Fields)  { l.E.WithFields(fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f syncache.Fields) { l.E.WithFields(fields(f)).Error(msg) }

// fields moves "err" to logrus.ErrorKey so formatters treat it as the error.
func fields(f syncache.Fields) logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if k == "err" {
			k = logrus.ErrorKey
		}
		out[k] = v
	}
	return out
}
