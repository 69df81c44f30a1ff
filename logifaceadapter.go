package fibermill

import (
	"github.com/joeycumines/logiface"
)

// logifaceLogger adapts a github.com/joeycumines/logiface logger to the
// fibermill.Logger interface, so applications already standardized on
// logiface (as the retrieval pack's event-loop teacher demonstrates wiring
// in its own test suite) can plug it directly into a runtime's Settings
// without writing their own adapter.
type logifaceLogger struct {
	l *logiface.Logger[logiface.Event]
}

// NewLogifaceLogger wraps l as a fibermill.Logger.
func NewLogifaceLogger(l *logiface.Logger[logiface.Event]) Logger {
	return &logifaceLogger{l: l}
}

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	if a.l == nil {
		return false
	}
	return a.l.Level() >= toLogifaceLevel(level)
}

func (a *logifaceLogger) Log(entry LogEntry) {
	if a.l == nil {
		return
	}
	b := a.l.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	b = b.Str("category", entry.Category)
	if entry.WorkerID != 0 {
		b = b.Int("worker_id", entry.WorkerID)
	}
	if entry.TaskID != 0 {
		b = b.Int("task_id", int(entry.TaskID))
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
