package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// BackendMode selects how the engine reaches the backend worker system.
type BackendMode string

const (
	// BackendLoopback runs the reference backend in-process.
	BackendLoopback BackendMode = "loopback"
	// BackendRemote talks to an external backend over the HTTP bridge.
	BackendRemote BackendMode = "remote"
)

// Config holds all application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Engine  EngineConfig  `mapstructure:"engine"`
	UI      UIConfig      `mapstructure:"ui"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BackendConfig holds backend connection configuration
type BackendConfig struct {
	Mode    BackendMode `mapstructure:"mode"`     // "loopback" or "remote"
	URL     string      `mapstructure:"url"`      // Bridge URL (remote mode)
	DataDir string      `mapstructure:"data_dir"` // Loopback store directory
}

// EngineConfig holds the state-reconciliation engine tunables
type EngineConfig struct {
	SearchDebounce     time.Duration `mapstructure:"search_debounce"`     // Quiet window for search input
	VisibilityDebounce time.Duration `mapstructure:"visibility_debounce"` // Quiet window for scroll-driven backfill
	BackfillBatchLimit int           `mapstructure:"backfill_batch_limit"`
	WatchdogTimeout    time.Duration `mapstructure:"watchdog_timeout"` // 0 disables the stuck-operation watchdog
}

// UIConfig holds UI configuration
type UIConfig struct {
	Theme          string `mapstructure:"theme"`
	ConfirmDeletes bool   `mapstructure:"confirm_deletes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:    BackendLoopback,
			DataDir: defaultDataPath(),
		},
		Engine: EngineConfig{
			SearchDebounce:     300 * time.Millisecond,
			VisibilityDebounce: 500 * time.Millisecond,
			BackfillBatchLimit: 25,
			WatchdogTimeout:    2 * time.Minute,
		},
		UI: UIConfig{
			Theme:          "default",
			ConfirmDeletes: true,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "stash", "stash.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "stash", "stash.log")
	}
}

// defaultDataPath returns the default backend data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "stash", "data")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "stash", "data")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "stash")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "stash")
	}
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := Default()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("STASH")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}
