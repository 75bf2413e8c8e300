// Package config loads the on-disk TOML configuration for the grouphug server.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultPath is used when no config file argument is given.
const DefaultPath = "Config.toml"

// Config is the top-level configuration, one struct per TOML section.
type Config struct {
	Electrum ElectrumConfig `toml:"electrum"`
	Group    GroupConfig    `toml:"group"`
	Dust     DustConfig     `toml:"dust"`
	Fee      FeeConfig      `toml:"fee"`
	Server   ServerConfig   `toml:"server"`
	Network  NetworkConfig  `toml:"network"`
}

// ElectrumConfig points the chain oracle at an Electrum endpoint.
type ElectrumConfig struct {
	Endpoint              string `toml:"endpoint"`
	CertificateValidation bool   `toml:"certificate_validation"`
}

// GroupConfig bounds the lifetime and size of a group.
type GroupConfig struct {
	// MaxTime is the maximum age of a group in seconds before the
	// sweeper closes it.
	MaxTime int64 `toml:"max_time"`
	// MaxSize is the number of input/output pairs that fills a group.
	MaxSize int `toml:"max_size"`
}

// DustConfig carries the minimum output value accepted, in satoshis.
type DustConfig struct {
	Limit int64 `toml:"limit"`
}

// FeeConfig carries the fee-rate bucket width in sat/vB.
type FeeConfig struct {
	Range float64 `toml:"range"`
}

// ServerConfig is the client-facing listen address.
type ServerConfig struct {
	IP   string `toml:"ip"`
	Port string `toml:"port"`
}

// NetworkConfig names the Bitcoin network the server operates on.
type NetworkConfig struct {
	Name string `toml:"name"`
}

// Default returns a Config with the documented defaults. Values present in
// the decoded file override these.
func Default() *Config {
	return &Config{
		Group: GroupConfig{
			MaxTime: 43200,
			MaxSize: 20,
		},
		Dust: DustConfig{
			Limit: 1000,
		},
		Fee: FeeConfig{
			Range: 2.0,
		},
		Server: ServerConfig{
			IP:   "127.0.0.1",
			Port: "8787",
		},
		Network: NetworkConfig{
			Name: "testnet",
		},
	}
}

// Load reads and validates the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Electrum.Endpoint == "" {
		return fmt.Errorf("electrum.endpoint must not be empty")
	}
	if c.Group.MaxTime <= 0 {
		return fmt.Errorf("group.max_time must be positive, got %d", c.Group.MaxTime)
	}
	if c.Group.MaxSize <= 0 {
		return fmt.Errorf("group.max_size must be positive, got %d", c.Group.MaxSize)
	}
	if c.Dust.Limit < 0 {
		return fmt.Errorf("dust.limit must not be negative, got %d", c.Dust.Limit)
	}
	if c.Fee.Range <= 0 {
		return fmt.Errorf("fee.range must be positive, got %g", c.Fee.Range)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	switch c.Network.Name {
	case "mainnet", "testnet", "signet":
	default:
		return fmt.Errorf("network.name must be mainnet, testnet or signet, got %q", c.Network.Name)
	}
	return nil
}
