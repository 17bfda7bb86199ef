package observability

import (
	"fmt"
	"sync"

	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the observability package logger.
func GetLogger() logger.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logger.Global().Module("observability")
	})
	return serviceLogger
}

// promErrorLogger adapts the package logger to promhttp.Logger.
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	GetLogger().Error("Prometheus handler error", logger.String("error", fmt.Sprint(v...)))
}
