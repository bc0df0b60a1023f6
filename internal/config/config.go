// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete icebreaker configuration.
type Config struct {
	// Model configuration
	Model ModelConfig `toml:"model"`

	// Server configuration for the local inference server
	Server ServerConfig `toml:"server"`

	// Web configuration for search and scraping
	Web WebConfig `toml:"web"`

	// Log configuration
	Log LogConfig `toml:"log"`
}

// ModelConfig locates the GGUF model file.
type ModelConfig struct {
	// Path is the local model file. When it does not exist and URL is
	// set, the model is downloaded there on boot.
	Path string `toml:"path"`
	// URL is an optional download source for the model file.
	URL string `toml:"url"`
	// ID is the model identifier sent with completion requests.
	// Defaults to the model file name without extension.
	ID string `toml:"id"`
}

// ServerConfig controls how the inference server is launched.
type ServerConfig struct {
	// Host the server binds to. Default: localhost.
	Host string `toml:"host"`
	// Port the server listens on. Default: 8080.
	Port int `toml:"port"`
	// Backend selects the compute backend: "cpu", "cuda", or "rocm".
	Backend string `toml:"backend"`
	// GPULayers is the -ngl value passed on GPU backends. Default: 80.
	GPULayers int `toml:"gpu_layers"`
	// Image is the container image family used when no native binary
	// is found. Default: ghcr.io/ggml-org/llama.cpp.
	Image string `toml:"image"`
}

// WebConfig controls search and scraping behavior.
type WebConfig struct {
	// MaxSearchResults caps how many links a plan search step keeps.
	MaxSearchResults int `toml:"max_search_results"`
	// MaxPageChars bounds how much extracted page text reaches the model.
	MaxPageChars int `toml:"max_page_chars"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	// Level is the zerolog level: "debug", "info", "warn", "error".
	Level string `toml:"level"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path: filepath.Join(dataDir(), "models", "model.gguf"),
		},
		Server: ServerConfig{
			Host:      "localhost",
			Port:      8080,
			Backend:   "cpu",
			GPULayers: 80,
			Image:     "ghcr.io/ggml-org/llama.cpp",
		},
		Web: WebConfig{
			MaxSearchResults: 5,
			MaxPageChars:     12000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "icebreaker", "config.toml")
	}
	return filepath.Join(dataDir(), "config.toml")
}

// Load reads the config at path, layered over defaults and under
// environment overrides. A missing file is not an error; defaults are
// returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers ICEBREAKER_* environment variables over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ICEBREAKER_MODEL"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("ICEBREAKER_MODEL_URL"); v != "" {
		c.Model.URL = v
	}
	if v := os.Getenv("ICEBREAKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("ICEBREAKER_BACKEND"); v != "" {
		c.Server.Backend = v
	}
	if v := os.Getenv("ICEBREAKER_LOG"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.Backend {
	case "cpu", "cuda", "rocm":
	default:
		return fmt.Errorf("server.backend %q must be cpu, cuda, or rocm", c.Server.Backend)
	}
	if c.Server.GPULayers < 0 {
		return fmt.Errorf("server.gpu_layers must not be negative")
	}
	if c.Web.MaxSearchResults < 1 {
		return fmt.Errorf("web.max_search_results must be at least 1")
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path must be set")
	}
	return nil
}

// Save writes the config as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

// dataDir is where models and state live by default.
func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "icebreaker")
	}
	return filepath.Join(home, ".local", "share", "icebreaker")
}
