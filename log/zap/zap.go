// Package zap adapts a *zap.Logger to syncache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/syncache"
)

var _ syncache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l. A nil l logs nothing.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f syncache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f syncache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f syncache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f syncache.Fields) { z.L.Error(msg, fields(f)...) }

// fields converts in key order; error values keep zap's error encoding.
func fields(f syncache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
