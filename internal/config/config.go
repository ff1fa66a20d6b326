// Package config loads the synchronizer's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the synchronizer's configuration: a single exchange,
// instrument, and symbol, the snapshot depth, optional REST/WS endpoint
// overrides, and a development flag. The other tunables (buffer size,
// retry delay, tick interval, error backoff) are constants in code, not
// configuration.
type Config struct {
	Exchange   string `json:"exchange"`
	Instrument string `json:"instrument"`
	Symbol     string `json:"symbol"`

	RESTBaseURL   string `json:"rest_base_url"`
	WSBaseURL     string `json:"ws_base_url"`
	SnapshotDepth int    `json:"snapshot_depth"`

	Development bool `json:"development"`
}

// LoadConfig loads and validates configuration from a JSON file.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("config file path cannot be empty")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filePath, err)
	}

	return &cfg, nil
}

// Validate checks required fields and fills in defaults for optional ones.
func (c *Config) Validate() error {
	if c.Exchange == "" {
		return fmt.Errorf("exchange cannot be empty")
	}
	if c.Instrument == "" {
		return fmt.Errorf("instrument cannot be empty")
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if c.SnapshotDepth <= 0 {
		c.SnapshotDepth = 5000
	}
	return nil
}
