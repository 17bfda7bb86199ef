package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-scout/internal/detection"
)

// envPrefix is prepended to every bound variable name.
const envPrefix = "BIRDNET_SCOUT"

// envBinding holds metadata for one environment variable binding
type envBinding struct {
	ConfigKey string             // viper config key
	EnvVar    string             // environment variable name
	Validate  func(string) error // optional validation
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"birdnet.latitude", envPrefix + "_LATITUDE", validateEnvLatitude},
		{"birdnet.longitude", envPrefix + "_LONGITUDE", validateEnvLongitude},
		{"birdnet.threads", envPrefix + "_THREADS", validateEnvNonNegativeInt},
		{"birdnet.modelpath", envPrefix + "_MODELPATH", nil},
		{"birdnet.labelpath", envPrefix + "_LABELPATH", nil},
		{"birdnet.rangefilter.modelpath", envPrefix + "_RANGEFILTER_MODELPATH", nil},

		{"detection.minaudioconfidence", envPrefix + "_MIN_AUDIO_CONFIDENCE", validateEnvPercent},
		{"detection.minlocationconfidence", envPrefix + "_MIN_LOCATION_CONFIDENCE", validateEnvPercent},
		{"detection.minsamplethreshold", envPrefix + "_MIN_SAMPLE_THRESHOLD", validateEnvPositiveInt},
		{"detection.timezone", envPrefix + "_TIMEZONE", nil},

		{"analyzer.clipdir", envPrefix + "_CLIP_DIR", nil},
		{"analyzer.clipkeymode", envPrefix + "_CLIP_KEY_MODE", validateEnvKeyMode},
		{"analyzer.store", envPrefix + "_STORE", validateEnvStoreMode},
		{"analyzer.remoteurl", envPrefix + "_REMOTE_URL", validateEnvURL},

		{"output.sqlite.path", envPrefix + "_SQLITE_PATH", nil},
		{"output.mysql.password", envPrefix + "_MYSQL_PASSWORD", nil},

		{"webserver.port", envPrefix + "_PORT", validateEnvPort},
		{"mqtt.password", envPrefix + "_MQTT_PASSWORD", nil},
		{"sentry.dsn", envPrefix + "_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and validates the ones that are set,
// collecting all problems into one error.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}

func validateEnvLatitude(value string) error {
	lat, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("must be between -90 and 90")
	}
	return nil
}

func validateEnvLongitude(value string) error {
	lon, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("must be between -180 and 180")
	}
	return nil
}

func validateEnvPercent(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer percent")
	}
	if n < 0 || n > 100 {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvKeyMode(value string) error {
	_, err := detection.ParseKeyMode(value)
	return err
}

func validateEnvStoreMode(value string) error {
	switch value {
	case StoreLocal, StoreRemote:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", StoreLocal, StoreRemote)
	}
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}
