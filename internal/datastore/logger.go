package datastore

import (
	"sync"

	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the datastore package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("datastore")
	})
	return serviceLogger
}
