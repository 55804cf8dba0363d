package logger

import (
	"go.uber.org/zap"
)

// LoggerAdapter gives components one logging surface whether the process
// writes categorized files or a single console stream.
type LoggerAdapter struct {
	general     *zap.Logger
	multiLogger *MultiLogger
}

// NewLoggerAdapter creates an adapter that writes events to categorized files
func NewLoggerAdapter(general *zap.Logger, multiLogger *MultiLogger) *LoggerAdapter {
	if general == nil {
		general = zap.NewNop()
	}
	return &LoggerAdapter{general: general, multiLogger: multiLogger}
}

// NewSingleLoggerAdapter creates an adapter that sends everything to one logger
func NewSingleLoggerAdapter(general *zap.Logger) *LoggerAdapter {
	return NewLoggerAdapter(general, nil)
}

// General returns the general application logger
func (la *LoggerAdapter) General() *zap.Logger {
	if la == nil {
		return zap.NewNop()
	}
	return la.general
}

// Transfer returns the transfer event logger
func (la *LoggerAdapter) Transfer() *zap.Logger {
	if la == nil || la.multiLogger == nil {
		return la.General()
	}
	return la.multiLogger.Transfer()
}

// Queue returns the queue event logger
func (la *LoggerAdapter) Queue() *zap.Logger {
	if la == nil || la.multiLogger == nil {
		return la.General()
	}
	return la.multiLogger.Queue()
}

// Error returns the error logger
func (la *LoggerAdapter) Error() *zap.Logger {
	if la == nil || la.multiLogger == nil {
		return la.General()
	}
	return la.multiLogger.Error()
}

// LogError logs an error to the general log and, when available, the error file
func (la *LoggerAdapter) LogError(msg string, fields ...zap.Field) {
	if la == nil {
		return
	}
	la.general.Error(msg, fields...)
	if la.multiLogger != nil {
		la.multiLogger.LogAppError(msg, fields...)
	}
}

// Sync flushes all loggers
func (la *LoggerAdapter) Sync() error {
	if la == nil {
		return nil
	}
	if la.multiLogger != nil {
		la.multiLogger.Sync()
	}
	return la.general.Sync()
}

// GetMultiLogger returns the underlying multi-logger, or nil
func (la *LoggerAdapter) GetMultiLogger() *MultiLogger {
	if la == nil {
		return nil
	}
	return la.multiLogger
}
