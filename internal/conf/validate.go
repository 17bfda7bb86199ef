package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/birdnet-scout/internal/detection"
)

// Analyzer store modes.
const (
	StoreLocal  = "local"
	StoreRemote = "remote"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateBirdNETSettings,
		validateDetectionSettings,
		validateAnalyzerSettings,
		validateOutputSettings,
		validateMQTTSettings,
		validateNotificationSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBirdNETSettings(s *Settings) error {
	b := s.BirdNET
	if b.Threads < 0 {
		return fmt.Errorf("birdnet.threads must be >= 0")
	}
	if b.Sensitivity <= 0 || b.Sensitivity > 1.5 {
		return fmt.Errorf("birdnet.sensitivity must be in (0, 1.5]")
	}
	if b.Overlap < 0 || b.Overlap >= 3 {
		return fmt.Errorf("birdnet.overlap must be in [0, 3)")
	}
	loc := detection.Location{Lat: b.Latitude, Lon: b.Longitude}
	if err := loc.Validate(); err != nil {
		return fmt.Errorf("birdnet: %w", err)
	}
	return nil
}

func validateDetectionSettings(s *Settings) error {
	if _, err := s.PercentConfig().Normalize(); err != nil {
		return err
	}
	return nil
}

func validateAnalyzerSettings(s *Settings) error {
	a := s.Analyzer
	if _, err := detection.ParseKeyMode(a.ClipKeyMode); err != nil {
		return fmt.Errorf("analyzer.clipkeymode: %w", err)
	}
	if a.Interval <= 0 {
		return fmt.Errorf("analyzer.interval must be positive")
	}
	if a.MinFileAge < 0 {
		return fmt.Errorf("analyzer.minfileage must not be negative")
	}
	switch a.Store {
	case StoreLocal:
	case StoreRemote:
		if err := validateEnvURL(a.RemoteURL); err != nil {
			return fmt.Errorf("analyzer.remoteurl: %w", err)
		}
	default:
		return fmt.Errorf("analyzer.store must be %q or %q", StoreLocal, StoreRemote)
	}
	for _, ext := range a.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("analyzer.extensions entry %q must start with a dot", ext)
		}
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	o := s.Output
	if o.SQLite.Enabled && o.MySQL.Enabled {
		return fmt.Errorf("output: enable either sqlite or mysql, not both")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path is required")
	}
	if o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == "") {
		return fmt.Errorf("output.mysql host and database are required")
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := s.MQTT
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		return fmt.Errorf("notification.urls must not be empty when notifications are enabled")
	}
	return nil
}
