// Package config loads the tacgo match server's YAML configuration,
// falling back to defaults for any file that doesn't exist.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the match server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error (default: info)

	// Session layer
	MaxSessions int `yaml:"max_sessions"` // live-session cap
	HistorySize int `yaml:"history_size"` // match-history ring buffer capacity
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress: "0.0.0.0",
		Port:        7777,
		LogLevel:    "info",
		MaxSessions: 64,
		HistorySize: 256,
	}
}

// LoadServer loads match server config from a YAML file, overlaying it
// onto DefaultServer. If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
