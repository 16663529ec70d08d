package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/pipeline"
	"github.com/vk/genopipe/internal/stage"
)

// runPipeline executes the full ordered stage chain. Orchestration events go
// to both the console and a per-run log file; each stage additionally tees
// its own output to a per-stage log. Run logs are never deleted here.
func (a *App) runPipeline(ctx context.Context) error {
	if err := a.ws.EnsureDirs(); err != nil {
		return err
	}

	runLogPath := filepath.Join(a.ws.LogDir, "run.log")
	runLog, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log %s: %w", runLogPath, err)
	}
	defer runLog.Close()

	runLogger := newLogger(a.config.LogLevel, a.config.LogFormat, io.MultiWriter(a.outW, runLog))
	ctx = ctxlog.WithLogger(ctx, runLogger)

	runner := stage.NewRunner(a.ws, io.MultiWriter(a.outW, runLog))
	orch := pipeline.New(a.pipeline, runner)

	summary, err := orch.RunAll(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.outW, "\nPipeline '%s' completed: %d stages.\n", summary.Pipeline, len(summary.Stages))
	for _, res := range summary.Stages {
		fmt.Fprintf(a.outW, "  %-24s %-10s %s\n", res.Stage, res.Duration.Round(time.Millisecond), res.LogPath)
	}
	fmt.Fprintf(a.outW, "Run log: %s\n", runLogPath)
	return nil
}
