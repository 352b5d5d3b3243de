package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
)

// LoggerAdapter routes watermill logs to zap.
type LoggerAdapter struct {
	lg *zap.Logger
}

var _ watermill.LoggerAdapter = LoggerAdapter{}

// NewLoggerAdapter wraps lg.
func NewLoggerAdapter(lg *zap.Logger) LoggerAdapter {
	return LoggerAdapter{lg: lg}
}

func (a LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.lg.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (a LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.lg.Info(msg, zapFields(fields)...)
}

func (a LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.lg.Debug(msg, zapFields(fields)...)
}

// Trace maps to Debug, zap has no lower level.
func (a LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.lg.Debug(msg, zapFields(fields)...)
}

func (a LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return LoggerAdapter{lg: a.lg.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
