package runner

import (
	"go.uber.org/zap"

	"github.com/teranos/valstream/sym"
)

// runnerLogger wraps zap.SugaredLogger with lifecycle helpers.
// Levels create visual distinction:
// - DEBUG level → STARTING (✿ runner start)
// - WARN level → CLOSING (❀ runner stop)
// - INFO level → PULSE (task execution)
type runnerLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening (✿) event
func (l runnerLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a closing (❀) event
func (l runnerLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// Pulse logs task execution
func (l runnerLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, keysAndValues...)
}
