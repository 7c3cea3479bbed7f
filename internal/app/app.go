package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/executor"
	"github.com/vk/hostmaint/internal/pipeline"
	"github.com/vk/hostmaint/internal/registry"
	"github.com/vk/hostmaint/internal/task"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	runConfig RunConfig
	model     *config.Model
	execs     *registry.Registry
	backends  *backend.Registry
	tasks     *task.Runner
}

// NewApp loads the configuration at cfg.ConfigPath and compiles every task.
// Logs and forwarded child output go to outW. Any returned error happens
// before a single process is spawned.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader, modules ...backend.Module) (*App, error) {
	// Bootstrap logger until the file's verbosity is known.
	boot := NewRunConfig(nil, cfg)
	logger := newLogger(boot.Threshold(), cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Loading configuration.", "path", cfg.ConfigPath)

	model, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	rc := NewRunConfig(model, cfg)
	logger = newLogger(rc.Threshold(), cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Configuration loaded.", "files", len(model.Files), "run_config", rc.String())

	if len(modules) == 0 {
		modules = coreModules
	}
	a := &App{
		outW:      outW,
		logger:    logger,
		runConfig: rc,
		model:     model,
		backends:  backend.NewRegistry(modules...),
	}
	logger.Debug("All backends registered.", "names", a.backends.Names())

	if err := a.compile(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Tasks compiled.", "tasks", a.tasks.IDs())
	return a, nil
}

// RunConfig returns the effective run configuration.
func (a *App) RunConfig() RunConfig { return a.runConfig }

// Model returns the loaded configuration.
func (a *App) Model() *config.Model { return a.model }

// Tasks returns the compiled task runner.
func (a *App) Tasks() *task.Runner { return a.tasks }

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

func (a *App) pipelineRunner(b backend.Backend) *pipeline.Runner {
	r := &pipeline.Runner{Threshold: a.runConfig.Threshold(), Diag: a.outW}
	if s, ok := b.(backend.IOSizer); ok && s.IOSize() > 0 {
		r.BufferSize = s.IOSize()
	}
	return r
}

func (a *App) newExecutor() *executor.Executor {
	return executor.New(a.runConfig.NbWorkers(), a.pipelineRunner(nil))
}
