package cmd

import (
	"github.com/tobyward/quill/internal/cache"
	"github.com/tobyward/quill/internal/config"
	"github.com/tobyward/quill/internal/engine"
	"github.com/tobyward/quill/internal/loader"
	"github.com/tobyward/quill/internal/logging"
)

// buildEngine assembles a template engine from the loaded
// configuration. Every subcommand that renders or parses templates
// goes through here so flags, env vars and .quill.yml behave the same
// everywhere.
func buildEngine() (*engine.Template, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: "cli",
	})

	ld := loader.New(cfg.Templates.Roots).WithExtension(cfg.Templates.Extension)

	blockCache := cache.New()
	blockCache.SetEnabled(cfg.Cache.Enabled)
	if cfg.Cache.Watch {
		if err := blockCache.Watch(); err != nil {
			return nil, nil, err
		}
	}

	tpl := engine.New(
		engine.WithLoader(ld),
		engine.WithCache(blockCache),
		engine.WithLogger(logger),
		engine.WithMaxDepth(cfg.Render.MaxDepth),
	)
	return tpl, cfg, nil
}
