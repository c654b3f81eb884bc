// Package config provides configuration loading and defaults for the signal
// demos.
//
// Both programs run with no configuration at all. A TOML file is read only
// when SIGDEMO_CONFIG names one, and a few environment variables override
// individual settings on top of the file, so a debug session can flip the
// SIGINT break flag without editing anything.
package config

//go:generate go run ../../cmd/genconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted by [Config.ApplyEnv] and the commands.
const (
	// EnvPath names the optional TOML config file.
	EnvPath = "SIGDEMO_CONFIG"
	// EnvBreakOnSIGINT overrides consumer.break_on_sigint (strconv.ParseBool).
	EnvBreakOnSIGINT = "SIGDEMO_BREAK_ON_SIGINT"
	// EnvLogLevel overrides log.level.
	EnvLogLevel = "SIGDEMO_LOG_LEVEL"
)

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Consumer holds dispatch loop settings.
	Consumer ConsumerConfig `toml:"consumer"`
	// Signals holds signal set settings.
	Signals SignalsConfig `toml:"signals"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Process holds process-level settings.
	Process ProcessConfig `toml:"process"`
}

// ConsumerConfig holds dispatch loop settings.
type ConsumerConfig struct {
	// BreakOnSIGINT makes SIGINT hit the debugger breakpoint function and
	// keep waiting instead of exiting.
	BreakOnSIGINT bool `toml:"break_on_sigint"`
}

// SignalsConfig holds signal set settings.
type SignalsConfig struct {
	// Block lists the signals signalfd-demo blocks and reads. Entries are
	// names ("SIGINT", "term"), numbers, or glob patterns ("SIGUSR*").
	Block []string `toml:"block"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fail).
	Level string `toml:"level"`
	// File sends logs to a rotating file instead of stderr when set.
	File string `toml:"file,omitempty"`
	// MaxSizeMB is the log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is the number of rotated log files kept.
	MaxBackups int `toml:"max_backups"`
}

// ProcessConfig holds process-level settings.
type ProcessConfig struct {
	// PIDFile, when set, receives the process ID under an exclusive lock so
	// a debugger can attach with `gdb -p $(cat file)`.
	PIDFile string `toml:"pid_file,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Consumer: ConsumerConfig{
			BreakOnSIGINT: false,
		},
		Signals: SignalsConfig{
			Block: []string{"SIGINT", "SIGTERM"},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads the TOML file at path over [DefaultConfig] and validates the
// result. An empty path returns the defaults without touching the
// filesystem. Unknown keys are logged and otherwise ignored.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "path", path, "key", key.String())
	}
	if !md.IsDefined("version") {
		cfg.Version = CurrentVersion
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. getenv is usually
// os.Getenv; unset or empty variables leave the setting alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvBreakOnSIGINT); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBreakOnSIGINT, err)
		}
		c.Consumer.BreakOnSIGINT = b
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return c.Validate()
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fail": true,
}

// Validate checks that all configuration values are within acceptable ranges.
// Signal names are resolved later by the command that uses them.
func (c *Config) Validate() error {
	if c.Version < 1 || c.Version > CurrentVersion {
		return fmt.Errorf("unsupported config version %d (this build understands %d)", c.Version, CurrentVersion)
	}

	if len(c.Signals.Block) == 0 {
		return errors.New("signals.block must list at least one signal")
	}
	for _, s := range c.Signals.Block {
		if strings.TrimSpace(s) == "" {
			return errors.New("signals.block contains an empty entry")
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, error, or fail", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if c.Log.MaxBackups < 0 {
		return fmt.Errorf("log.max_backups must be >= 0, got %d", c.Log.MaxBackups)
	}

	return nil
}
