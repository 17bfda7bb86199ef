package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-scout/internal/detection"
)

// setDefaultConfig registers a default for every key so env-only setups work.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BirdNET-Scout")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/birdnet-scout.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("birdnet.modelpath", "model/BirdNET_GLOBAL_6K_V2.4_Model_FP32.tflite")
	viper.SetDefault("birdnet.labelpath", "model/labels.txt")
	viper.SetDefault("birdnet.threads", 0)
	viper.SetDefault("birdnet.sensitivity", 1.0)
	viper.SetDefault("birdnet.overlap", 0.0)
	viper.SetDefault("birdnet.latitude", 0.0)
	viper.SetDefault("birdnet.longitude", 0.0)
	viper.SetDefault("birdnet.rangefilter.modelpath", "model/BirdNET_GLOBAL_6K_V2.4_MData_Model_FP16.tflite")
	viper.SetDefault("birdnet.rangefilter.cachettl", 6*time.Hour)

	viper.SetDefault("detection.minaudioconfidence", detection.DefaultMinAudioConfidence)
	viper.SetDefault("detection.minlocationconfidence", detection.DefaultMinLocationConfidence)
	viper.SetDefault("detection.minsamplethreshold", detection.DefaultMinSampleThreshold)
	viper.SetDefault("detection.timezone", detection.DefaultTimezone)

	viper.SetDefault("analyzer.enabled", true)
	viper.SetDefault("analyzer.clipdir", "clips")
	viper.SetDefault("analyzer.rejectdir", "")
	viper.SetDefault("analyzer.interval", 30*time.Second)
	viper.SetDefault("analyzer.clipkeymode", string(detection.KeyModeDuration))
	viper.SetDefault("analyzer.extensions", []string{".wav", ".flac"})
	viper.SetDefault("analyzer.minfileage", 2*time.Second)
	viper.SetDefault("analyzer.store", "local")
	viper.SetDefault("analyzer.remoteurl", "http://localhost:8080")
	viper.SetDefault("analyzer.timeout", 10*time.Second)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "birdnet-scout.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "birdnet")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "birdnet")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.cachettl", 30*time.Second)
	viper.SetDefault("webserver.heartbeatttl", 30*time.Second)
	viper.SetDefault("webserver.bodylimit", "2M")
	viper.SetDefault("webserver.allowedorigin", []string{"*"})

	viper.SetDefault("geolocation.enabled", false)
	viper.SetDefault("geolocation.ipurl", "https://api.ipify.org")
	viper.SetDefault("geolocation.lookupurl", "http://ip-api.com/json/")
	viper.SetDefault("geolocation.ratelimit", 1.0)
	viper.SetDefault("geolocation.timeout", 5*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "birdnet-scout/detections")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.qos", 1)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.title", "New bird observation")
	viper.SetDefault("notification.dedupewindow", 24*time.Hour)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("metrics.enabled", true)
}
