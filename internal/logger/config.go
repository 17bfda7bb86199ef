package logger

// LoggingConfig is the "logging" section of the settings file.
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level" mapstructure:"default_level"`
	Timezone     string            `yaml:"timezone" json:"timezone" mapstructure:"timezone"` // "Local", "UTC" or an IANA name
	Console      *ConsoleOutput    `yaml:"console" json:"console" mapstructure:"console"`
	FileOutput   *FileOutput       `yaml:"file_output" json:"file_output" mapstructure:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels" mapstructure:"module_levels"` // e.g. datastore: trace
}

// ConsoleOutput writes text to stdout. Timestamps are left to journald or
// Docker.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// FileOutput appends JSON lines to Path.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// Defaults, mirrored by conf/defaults.go.
const (
	DefaultLogLevel = "info"
	DefaultLogPath  = "logs/birdnet-scout.log"
)

// applyConfigDefaults fills missing sections so a settings file without a
// logging block still logs to the console.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}
	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Path: DefaultLogPath, Level: cfg.DefaultLevel}
	}
}
