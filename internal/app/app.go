package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/manifest"
	"github.com/vk/genopipe/internal/workspace"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. The workspace and pipeline are resolved once at construction
// and stay fixed for the App's lifetime.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	ws       *workspace.Workspace
	pipeline *manifest.Pipeline
}

// NewApp resolves the workspace from the configured invocation directory,
// loads any workspace .env (bundle source credentials, proxy settings), and
// loads the pipeline manifest. Every failure here is an operator-facing
// startup error.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	ws, err := workspace.Resolve(cfg.InvocationDir)
	if err != nil {
		return nil, err
	}
	logger.Debug("Workspace resolved.", "root", ws.Root)

	// Missing .env is the common case and not an error.
	_ = godotenv.Load(filepath.Join(ws.Root, ".env"))

	manifestPath := cfg.ManifestPath
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(ws.Root, manifestPath)
	}
	pipeline, err := manifest.Load(ctx, ws, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline manifest: %w", err)
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		ws:       ws,
		pipeline: pipeline,
	}, nil
}

// Workspace returns the resolved workspace. This is primarily for testing.
func (a *App) Workspace() *workspace.Workspace {
	return a.ws
}

// Pipeline returns the loaded pipeline model. This is primarily for testing.
func (a *App) Pipeline() *manifest.Pipeline {
	return a.pipeline
}

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	switch a.config.Command {
	case CommandSetup:
		return a.runSetup(ctx)
	case CommandRun:
		return a.runPipeline(ctx)
	default:
		return fmt.Errorf("unknown command %q", a.config.Command)
	}
}
