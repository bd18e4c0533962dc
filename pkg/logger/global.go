// pkg/logger/global.go
package logger

import "sync"

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

func InitGlobal(opts Options) *Logger {
	l := NewLogger(opts)
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	return l
}

// GetLogger returns the global logger, creating a stdout INFO logger on first use.
func GetLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return InitGlobal(Options{Level: LevelInfo})
}

// Package-level helpers
func Debug(format string, v ...interface{}) {
	GetLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	GetLogger().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GetLogger().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GetLogger().Error(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GetLogger().Fatal(format, v...)
}
