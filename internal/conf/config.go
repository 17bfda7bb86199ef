// Package conf loads and validates BirdNET-Scout settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains the node identity.
type MainSettings struct {
	Name string // node name, used as MQTT client id suffix and in notifications
}

// BirdNETConfig contains model and inference settings.
type BirdNETConfig struct {
	ModelPath   string              // path to the BirdNET tflite classifier
	LabelPath   string              // path to the label file, one "Scientific_Common" per line
	Threads     int                 // inference threads, 0 = auto
	Sensitivity float64             // sigmoid sensitivity
	Overlap     float64             // seconds of overlap between 3 s windows
	Latitude    float64             // fallback latitude when no stored location exists
	Longitude   float64             // fallback longitude when no stored location exists
	RangeFilter RangeFilterSettings // range (location prior) model
}

// RangeFilterSettings contains settings for the range model.
type RangeFilterSettings struct {
	ModelPath string        // path to the BirdNET meta model
	CacheTTL  time.Duration // how long a computed prior is kept
}

// DetectionSettings holds the operator defaults for the stored config record.
type DetectionSettings struct {
	MinAudioConfidence    int    // percent, 0..100
	MinLocationConfidence int    // percent, 0..100
	MinSampleThreshold    int    // detections required for an observation
	Timezone              string // IANA zone used for observation dates
}

// AnalyzerSettings configures the pipeline driver.
type AnalyzerSettings struct {
	Enabled     bool          // run the pipeline inside "serve"
	ClipDir     string        // directory the recorder publishes clips to
	RejectDir   string        // quarantine for malformed clip keys, empty = leave in place
	Interval    time.Duration // time between cycles
	ClipKeyMode string        // "duration" or "end"
	Extensions  []string      // accepted clip extensions
	MinFileAge  time.Duration // clips younger than this are not picked up
	Store       string        // "local" or "remote"
	RemoteURL   string        // base URL of a scout server when Store is remote
	Timeout     time.Duration // HTTP timeout for remote calls
}

// SQLiteSettings contains settings for SQLite storage.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings contains settings for MySQL storage.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// OutputSettings selects the detection store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled       bool
	Port          string
	Debug         bool
	CacheTTL      time.Duration // observation response cache
	HeartbeatTTL  time.Duration // staleness limit for /healthcheck
	BodyLimit     string        // echo body limit, e.g. "2M"
	AllowedOrigin []string      // CORS origins
}

// GeolocationSettings configures the IP based location refresh.
type GeolocationSettings struct {
	Enabled   bool
	IPURL     string        // returns the public IP as text
	LookupURL string        // prefix, the IP is appended
	RateLimit float64       // requests per second towards the lookup service
	Timeout   time.Duration // per request
}

// MQTTSettings contains settings for MQTT.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string
	Username string
	Password string
	Retain   bool
	QoS      byte
}

// NotificationSettings configures shoutrrr push notifications for new
// confirmed observations.
type NotificationSettings struct {
	Enabled      bool
	URLs         []string
	Title        string
	DedupeWindow time.Duration
}

// SentrySettings contains telemetry settings.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool

	Main         MainSettings
	Logging      logger.LoggingConfig
	BirdNET      BirdNETConfig
	Detection    DetectionSettings
	Analyzer     AnalyzerSettings
	Output       OutputSettings
	WebServer    WebServerSettings
	Geolocation  GeolocationSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
	Metrics      MetricsSettings
}

// PercentConfig builds the default stored config from the detection section.
// A non-zero latitude/longitude pair becomes the initial location.
func (s *Settings) PercentConfig() detection.PercentConfig {
	p := detection.PercentConfig{
		MinAudioConfidence:    s.Detection.MinAudioConfidence,
		MinLocationConfidence: s.Detection.MinLocationConfidence,
		MinSampleThreshold:    s.Detection.MinSampleThreshold,
		Timezone:              s.Detection.Timezone,
	}
	if s.BirdNET.Latitude != 0 || s.BirdNET.Longitude != 0 {
		p.Location = &detection.Location{Lat: s.BirdNET.Latitude, Lon: s.BirdNET.Longitude}
	}
	return p
}

// ClipKeyMode returns the parsed analyzer key mode.
func (s *Settings) ClipKeyMode() detection.KeyMode {
	mode, err := detection.ParseKeyMode(s.Analyzer.ClipKeyMode)
	if err != nil {
		return detection.KeyModeDuration
	}
	return mode
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// GetSettings returns the settings loaded by the last Load call.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper sets defaults, binds the environment and reads config.yaml.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// bad env values are reported, the defaults still apply
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it.
func createDefaultConfig(dir string) error {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// SaveYAMLConfig writes settings to configPath through a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
