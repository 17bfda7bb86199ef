package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

const appDirName = "birdnet-scout"

// GetDefaultConfigPaths returns config search paths in priority order. If a
// config.yaml exists in one of them, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	if runtime.GOOS == "windows" {
		configPaths = []string{filepath.Join(homeDir, "AppData", "Roaming", appDirName)}
	} else {
		configPaths = []string{
			filepath.Join(homeDir, ".config", appDirName),
			filepath.Join("/etc", appDirName),
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// GetLogger returns the config module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
