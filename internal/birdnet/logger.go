package birdnet

import (
	"sync"

	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the birdnet package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("birdnet")
	})
	return serviceLogger
}
