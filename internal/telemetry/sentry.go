// Package telemetry wires the enhanced error package to Sentry. Events are
// privacy filtered before they leave the process.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("telemetry")
	})
	return serviceLogger
}

// allowedExtra lists the event extras kept by the privacy filter.
var allowedExtra = map[string]bool{
	"error_type": true,
	"component":  true,
}

// Init starts the Sentry SDK when telemetry is enabled and routes enhanced
// errors to it. With telemetry disabled the error reporter is cleared.
func Init(settings *conf.Settings, version string) error {
	return initWithTransport(settings, version, nil)
}

func initWithTransport(settings *conf.Settings, version string, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		errors.SetTelemetryReporter(nil)
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("birdnet-scout@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
		Transport: transport,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("Error telemetry enabled", logger.String("release", version))
	return nil
}

// applyPrivacyFilters strips host and user identity from an event and
// scrubs URLs in its message.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Message = errors.ScrubMessage(event.Message)

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for i := range event.Exception {
		event.Exception[i].Value = errors.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits up to timeout for queued events.
func Flush(timeout time.Duration) {
	if sentry.CurrentHub().Client() == nil {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("Sentry flush timed out", logger.Duration("timeout", timeout))
	}
}
