// Copyright 2024-2026 Aiku AI

package gateway

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the gateway configuration. Values come from an optional YAML
// file and may be overridden per field by environment variables, which is
// how container deployments configure the gateway.
type Config struct {
	// ListenAddr is the HTTP API listen address. Env: LISTEN_ADDR (or PORT
	// for just the port number).
	ListenAddr string `yaml:"listen_addr"`
	// WebhookURL receives inbound message envelopes. Empty disables
	// forwarding. Env: WEBHOOK_URL.
	WebhookURL string `yaml:"webhook_url"`
	// StoreURI is the remote session store connection string: a
	// postgres:// URL or a sqlite database path. Env: DATABASE_URL.
	StoreURI string `yaml:"store_uri"`
	// SessionDir holds the local durable credential representation used
	// by the protocol engine. Env: SESSION_DIR.
	SessionDir string `yaml:"session_dir"`
	// LogLevel is a zerolog level name. Env: LOG_LEVEL.
	LogLevel string `yaml:"log_level"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// LoadConfig reads the YAML file at path (skipped when path is empty),
// applies environment overrides, then fills defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.StoreURI = v
	}
	if v := os.Getenv("SESSION_DIR"); v != "" {
		c.SessionDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":3000"
	}
	if c.StoreURI == "" {
		c.StoreURI = "wagate.db"
	}
	if c.SessionDir == "" {
		c.SessionDir = "session"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
