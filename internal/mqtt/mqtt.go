// Package mqtt publishes detections to an MQTT broker.
package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error
	// Publish sends payload to topic using the configured QoS and retain flag.
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	Retain   bool
	QoS      byte

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// ConfigFromSettings builds a client Config from application settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	clientID := "birdnet-scout"
	if settings.Main.Name != "" {
		clientID += "-" + settings.Main.Name
	}
	return Config{
		Broker:         settings.MQTT.Broker,
		ClientID:       clientID,
		Username:       settings.MQTT.Username,
		Password:       settings.MQTT.Password,
		Topic:          settings.MQTT.Topic,
		Retain:         settings.MQTT.Retain,
		QoS:            settings.MQTT.QoS,
		ConnectTimeout: 30 * time.Second,
		PublishTimeout: 10 * time.Second,
	}
}

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the mqtt package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("mqtt")
	})
	return serviceLogger
}
