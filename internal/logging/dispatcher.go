package logging

import "github.com/rs/zerolog"

// DispatcherLogger writes the dispatcher's key/value log calls through zerolog,
// tagged with component=dispatcher.
type DispatcherLogger struct {
	zl zerolog.Logger
}

func NewDispatcherLogger(zl zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{zl: zl.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, kv ...any) { emit(l.zl.Debug(), msg, kv) }
func (l *DispatcherLogger) Info(msg string, kv ...any)  { emit(l.zl.Info(), msg, kv) }
func (l *DispatcherLogger) Error(msg string, kv ...any) { emit(l.zl.Error(), msg, kv) }

// emit drops a trailing key with no value; zerolog skips non-string keys.
func emit(ev *zerolog.Event, msg string, kv []any) {
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}
	ev.Fields(kv).Msg(msg)
}
