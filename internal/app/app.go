// Package app wires an enspipe invocation together: logger, plugin
// registry, plugin option decoding, and subcommand dispatch.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/enspipe/enspipe/internal/config"
	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/plugin"
)

// App encapsulates one configured invocation's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *plugin.Registry
	plugin   plugin.Plugin
	config   *Config
}

// NewApp builds a fully initialized App: an isolated logger, a registry
// populated with the builtin plugins, plugin options decoded from the
// configured HCL path, and the selected plugin resolved. Option-namespace
// problems and unknown plugins are configuration errors reported to the
// caller, not panics.
func NewApp(outW io.Writer, cfg *Config, extra ...plugin.Plugin) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("logger configured")

	reg := plugin.NewRegistry()
	for _, p := range builtins() {
		reg.Register(p)
	}
	for _, p := range extra {
		reg.Register(p)
	}
	logger.Debug("plugins registered", "names", reg.Names())

	if err := config.ValidatePluginOptions(ctx, reg, coreOptionKeys); err != nil {
		return nil, err
	}
	if cfg.PluginConfig != "" {
		if err := config.LoadPluginOptions(ctx, cfg.PluginConfig, reg); err != nil {
			return nil, fmt.Errorf("loading plugin options: %w", err)
		}
		logger.Debug("plugin options loaded", "path", cfg.PluginConfig)
	}

	p, err := reg.Lookup(cfg.PluginName)
	if err != nil {
		return nil, err
	}

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		plugin:   p,
		config:   cfg,
	}, nil
}

// Registry returns the application's plugin registry, primarily for tests.
func (a *App) Registry() *plugin.Registry {
	return a.registry
}
