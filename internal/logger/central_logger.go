package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata" // logging and aggregation resolve IANA zones
)

// LogFilePermissions applies to log files we create.
const LogFilePermissions = 0o600

var (
	global   *CentralLogger
	globalMu sync.Mutex
)

// SetGlobal installs cl as the logger returned by Global. main calls it once
// the settings are loaded.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = cl
}

// Global returns the installed CentralLogger, or an info-level console
// logger if none was installed yet.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		level := parseLogLevel(DefaultLogLevel)
		global = &CentralLogger{
			handler:      newTextHandler(os.Stdout, level, time.Local),
			defaultLevel: level,
		}
	}
	return global
}

// CentralLogger holds the configured outputs and hands out module loggers
// that share them.
type CentralLogger struct {
	mu           sync.RWMutex
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level
	file         *BufferedFileWriter
}

// NewCentralLogger builds the console and file outputs described by cfg.
// With both disabled it still logs to the console at the default level.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	var outputs []slog.Handler
	if cfg.Console.Enabled {
		outputs = append(outputs, newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		w, err := openLogFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.file = w
		outputs = append(outputs, newJSONHandler(w, parseLogLevel(cfg.FileOutput.Level), tz))
	}

	switch len(outputs) {
	case 0:
		cl.handler = newTextHandler(os.Stdout, cl.defaultLevel, tz)
	case 1:
		cl.handler = outputs[0]
	default:
		cl.handler = fanoutHandler(outputs)
	}
	return cl, nil
}

func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	return NewBufferedFileWriter(path)
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// Module returns the logger for a top-level module. Its level comes from
// module_levels, falling back to the default level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &moduleLogger{
		name:  name,
		out:   slog.New(cl.handler),
		level: level,
	}
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes, syncs and closes the log file. Module loggers keep working
// afterwards but file writes fail silently.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
