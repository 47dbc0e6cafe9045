package logging

import (
	"go.uber.org/zap"
)

// Logger provides structured key/value logging for the worker, backed by
// zap's SugaredLogger. Call sites pass alternating key/value pairs, same
// shape as the worker's original hand-rolled logger.
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a new production-mode logger with a component prefix.
func NewLogger(prefix string) *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return &Logger{prefix: prefix, sugar: base.Sugar().With("component", prefix)}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// With returns a child logger carrying fixed fields (e.g. run_id, doc_id)
// added to every subsequent call.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
