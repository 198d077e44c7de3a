package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the .hive/config.yaml shape.
type Config struct {
	// Instances is the agent pool size serve starts with.
	Instances int `yaml:"instances"`

	// Executor is the command run for each claimed work item. The item
	// is passed through HIVE_* environment variables. Empty means items
	// complete immediately, useful for dry runs.
	Executor string `yaml:"executor,omitempty"`

	// IdleSleep is the agent poll backoff.
	IdleSleep time.Duration `yaml:"idleSleep,omitempty"`

	Notify NotifyConfig `yaml:"notify,omitempty"`
}

// NotifyConfig configures the websocket notification server.
type NotifyConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr,omitempty"`

	// Key is the pre-shared key clients must present.
	Key string `yaml:"key,omitempty"`
}

func defaultConfig() Config {
	return Config{Instances: 3}
}

// LoadConfig reads path. A missing file yields defaults; a malformed
// file is an error.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Instances < 0 {
		return cfg, fmt.Errorf("config instances must be >= 0, got %d", cfg.Instances)
	}
	return cfg, nil
}
