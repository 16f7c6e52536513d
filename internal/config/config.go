// Package config provides configuration management for the quill CLI
// and embedding applications using Viper, loading from .quill.yml
// files, QUILL_-prefixed environment variables and command-line flags.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tobyward/quill/internal/loader"
)

// Config is the full engine and CLI configuration.
type Config struct {
	Templates TemplatesConfig `yaml:"templates"`
	Render    RenderConfig    `yaml:"render"`
	Cache     CacheConfig     `yaml:"cache"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

// TemplatesConfig controls template file resolution.
type TemplatesConfig struct {
	// Roots are the directories searched for logical template names,
	// in order.
	Roots []string `yaml:"roots"`
	// Extension is appended to names without one.
	Extension string `yaml:"extension"`
}

// RenderConfig controls the render pipeline.
type RenderConfig struct {
	// MaxDepth bounds nested block, recursion, include and template
	// renders.
	MaxDepth int `yaml:"max_depth"`
}

// CacheConfig controls the compiled-block cache.
type CacheConfig struct {
	// Enabled turns the cache off entirely when false.
	Enabled bool `yaml:"enabled"`
	// Watch enables fsnotify-driven eager invalidation, for
	// long-running processes serving templates that change on disk.
	Watch bool `yaml:"watch"`
}

// Load builds the configuration from viper's current state, applying
// defaults for anything unset.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if !viper.IsSet("cache.enabled") {
		config.Cache.Enabled = true
	}

	// Workaround for viper slice handling when values arrive through
	// environment variables.
	if viper.IsSet("templates.roots") && len(config.Templates.Roots) == 0 {
		config.Templates.Roots = viper.GetStringSlice("templates.roots")
	}

	// Workaround for snake_case keys that Unmarshal cannot match to
	// field names.
	if viper.IsSet("render.max_depth") {
		config.Render.MaxDepth = viper.GetInt("render.max_depth")
	}
	if viper.IsSet("log_level") {
		config.LogLevel = viper.GetString("log_level")
	}
	if viper.IsSet("log_format") {
		config.LogFormat = viper.GetString("log_format")
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if len(config.Templates.Roots) == 0 {
		config.Templates.Roots = []string{".", "./templates"}
	}
	if config.Templates.Extension == "" {
		config.Templates.Extension = loader.DefaultExtension
	}
	if config.Render.MaxDepth == 0 {
		config.Render.MaxDepth = 64
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Render.MaxDepth < 1 {
		return fmt.Errorf("render.max_depth must be positive, got %d", c.Render.MaxDepth)
	}
	if c.Cache.Watch && !c.Cache.Enabled {
		return fmt.Errorf("cache.watch requires cache.enabled")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
