// Package api provides the HTTP server for BirdNET-Scout. The JSON
// endpoints live in the handlers subpackage.
package api

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("api")
	})
	return serviceLogger
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string // empty binds all interfaces
	Port string

	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "2M"
	Debug     bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "2M",
	}
}

// ConfigFromSettings overlays the webserver settings on the defaults.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := settings.WebServer
	if ws.Port != "" {
		cfg.Port = ws.Port
	}
	if len(ws.AllowedOrigin) > 0 {
		cfg.AllowedOrigins = ws.AllowedOrigin
	}
	if ws.BodyLimit != "" {
		cfg.BodyLimit = ws.BodyLimit
	}
	cfg.Debug = ws.Debug
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}
