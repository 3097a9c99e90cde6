package spanlight

import (
	"sync"

	"github.com/spanlight/go-sensor/logger"
)

// LeveledLogger is an interface of a generic logger that supports logging at
// different levels. It is satisfied by both logrus.Logger and
// zap.SugaredLogger as well as by logger.Logger, which is used by default.
type LeveledLogger interface {
	Debug(v ...interface{})
	Info(v ...interface{})
	Warn(v ...interface{})
	Error(v ...interface{})
}

var (
	muLogger      sync.RWMutex
	defaultLogger LeveledLogger = logger.New(nil)
)

// SetLogger replaces the logger used by this package to report setup and
// instrumentation issues
func SetLogger(l LeveledLogger) {
	muLogger.Lock()
	defer muLogger.Unlock()

	defaultLogger = l
}

// Logger returns the logger currently used by this package
func Logger() LeveledLogger {
	muLogger.RLock()
	defer muLogger.RUnlock()

	return defaultLogger
}
