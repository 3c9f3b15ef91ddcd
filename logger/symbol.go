package logger

import (
	"github.com/teranos/valstream/sym"
)

// Symbol-aware logging helpers.
// The symbol goes into a structured field, not the message.

// StageInfow logs an info message tagged with the stage's glyph.
func StageInfow(stage, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.ForStage(stage), FieldStage, stage}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// StageWarnw logs a warning tagged with the stage's glyph.
func StageWarnw(stage, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.ForStage(stage), FieldStage, stage}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// PulseOpenInfow logs an info message with the PulseOpen symbol (✿)
func PulseOpenInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.PulseOpen}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// PulseCloseInfow logs an info message with the PulseClose symbol (❀)
func PulseCloseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.PulseClose}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
