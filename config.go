package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mistvale/server/logging"
)

// Config carries the tunable engine parameters. Zero values are filled in by
// Normalize so a partial YAML file or a zero literal both work.
type Config struct {
	// Addr is the listen address of the websocket gateway.
	Addr string `yaml:"addr"`

	// TickInterval is the wall-clock pacing of the simulation loop.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Seed drives every random decision in the world. Two worlds with the
	// same seed, graphs, and action feed replay identically.
	Seed int64 `yaml:"seed"`

	// CommunicationTimeout is how long a dialogue prompt waits for the
	// player's answer before expiring.
	CommunicationTimeout time.Duration `yaml:"communication_timeout"`

	// MaxWalkDepth bounds nested node executions in one tree walk.
	MaxWalkDepth int `yaml:"max_walk_depth"`

	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns the stock engine parameters.
func DefaultConfig() Config {
	return Config{
		Addr:                 ":8080",
		TickInterval:         250 * time.Millisecond,
		Seed:                 1,
		CommunicationTimeout: 20 * time.Second,
		MaxWalkDepth:         maxWalkDepth,
		Logging:              logging.DefaultConfig(),
	}
}

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	defaults := DefaultConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.CommunicationTimeout <= 0 {
		c.CommunicationTimeout = defaults.CommunicationTimeout
	}
	if c.MaxWalkDepth <= 0 {
		c.MaxWalkDepth = defaults.MaxWalkDepth
	}
}

// UnmarshalYAML decodes the config, accepting durations in the
// time.ParseDuration form ("250ms", "20s"). Absent fields keep whatever the
// receiver already holds, so unmarshalling over DefaultConfig merges.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Addr                 string         `yaml:"addr"`
		TickInterval         string         `yaml:"tick_interval"`
		Seed                 int64          `yaml:"seed"`
		CommunicationTimeout string         `yaml:"communication_timeout"`
		MaxWalkDepth         int            `yaml:"max_walk_depth"`
		Logging              logging.Config `yaml:"logging"`
	}{
		Addr:         c.Addr,
		Seed:         c.Seed,
		MaxWalkDepth: c.MaxWalkDepth,
		Logging:      c.Logging,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Addr = raw.Addr
	c.Seed = raw.Seed
	c.MaxWalkDepth = raw.MaxWalkDepth
	c.Logging = raw.Logging
	if raw.TickInterval != "" {
		d, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return fmt.Errorf("tick_interval: %w", err)
		}
		c.TickInterval = d
	}
	if raw.CommunicationTimeout != "" {
		d, err := time.ParseDuration(raw.CommunicationTimeout)
		if err != nil {
			return fmt.Errorf("communication_timeout: %w", err)
		}
		c.CommunicationTimeout = d
	}
	return nil
}

// LoadConfig reads a YAML config file. A missing path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}
