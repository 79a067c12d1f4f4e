package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.port/config.toml.
type Config struct {
	DefaultSession string  `toml:"default_session"`
	Relay          Relay   `toml:"relay"`
	Metrics        Metrics `toml:"metrics"`
}

// Relay configures the connection to the local transport/crypto
// collaborator that hands the daemon decrypted envelopes.
type Relay struct {
	URL string `toml:"url"`
	// ReconnectSeconds is the base backoff between reconnect attempts.
	ReconnectSeconds int `toml:"reconnect_seconds"`
}

// Metrics configures the optional Prometheus listener. Empty Addr
// disables it.
type Metrics struct {
	Addr string `toml:"addr"`
}

// Default returns the config used when no file exists yet.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Relay: Relay{
			URL:              "ws://127.0.0.1:7447/envelopes",
			ReconnectSeconds: 2,
		},
	}
}

// Load reads config from the given path. Returns an error if the file
// is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads the config, falling back to defaults when the
// file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	if cfg.Relay.URL == "" {
		cfg.Relay.URL = Default().Relay.URL
	}
	if cfg.Relay.ReconnectSeconds <= 0 {
		cfg.Relay.ReconnectSeconds = Default().Relay.ReconnectSeconds
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
