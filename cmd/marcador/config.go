package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// config is the on-disk configuration, stored as config.yaml in the data
// directory. Missing fields fall back to defaults; a missing file is created
// with the defaults so users have something to edit.
type config struct {
	HTTP     string `yaml:"http"`
	LogLevel string `yaml:"log_level"`
	History  struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
		Email   string `yaml:"email"`
	} `yaml:"history"`
	Fetch struct {
		TimeoutSeconds int  `yaml:"timeout_seconds"`
		PageMetadata   bool `yaml:"page_metadata"`
	} `yaml:"fetch"`
}

func defaultConfig() config {
	var c config
	c.HTTP = "localhost:8787"
	c.LogLevel = "info"
	c.History.Enabled = true
	c.History.Name = "marcador"
	c.History.Email = "marcador@localhost"
	c.Fetch.TimeoutSeconds = 10
	c.Fetch.PageMetadata = true
	return c
}

func loadConfig(dataDir string) (config, error) {
	cfg := defaultConfig()
	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to marshal default config: %w", err)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil { //nolint:gosec // G306: config is not sensitive
			return cfg, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
