// Package config loads mongolite's runtime configuration: where the
// SQLite file lives and how the change-stream poller is tuned.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	ChangeStream ChangeStreamConfig `mapstructure:"change_stream"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// DatabaseConfig describes the embedded SQLite engine this module opens.
type DatabaseConfig struct {
	Path        string        `mapstructure:"path"` // file path, or ":memory:"
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// ChangeStreamConfig tunes the change-log poller shared by every watch
// on a given database handle (§4.H, §5).
type ChangeStreamConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

var cfg *Config

// Load reads config.yaml from configPath (or the working directory),
// falling back to defaults and environment variables prefixed
// MONGOLITE_ when no file is present.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/mongolite")
	}

	setDefaults()

	viper.SetEnvPrefix("MONGOLITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg = &config
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.path", "./mongolite.db")
	viper.SetDefault("database.busy_timeout", 5*time.Second)

	viper.SetDefault("change_stream.poll_interval", 100*time.Millisecond)
	viper.SetDefault("change_stream.batch_size", 256)
	viper.SetDefault("change_stream.queue_capacity", 1024)

	viper.SetDefault("logging.level", "info")
}

// Get returns the last config loaded by Load. Panics if Load was never
// called — callers that don't need file/env configuration should build
// a Config literal directly instead.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded")
	}
	return cfg
}
