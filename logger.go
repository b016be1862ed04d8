package syncache

// Fields carries structured context for one log line. Keys are short and
// stable ("ns", "key", "op", "chunk"); an "err" value holds an error.
type Fields map[string]any

// Logger is the leveled sink shared by the manager, optimistic lists and the
// batch orchestrator. Adapters for zap, logrus and slog live under log/.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// LoggerOr returns l, or NopLogger when l is nil.
func LoggerOr(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
