// Package stage executes one pipeline stage as a child process, teeing its
// combined output to a per-stage log, and enforces the stage's input and
// output contracts around the execution.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/manifest"
	"github.com/vk/genopipe/internal/workspace"
)

// ExitError reports a stage process that signaled failure itself.
type ExitError struct {
	Stage string
	Code  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("stage '%s' failed with exit code %d", e.Stage, e.Code)
}

// ContractError reports a stage that exited zero without producing its
// declared outputs. Downstream stages depend on those files, so this is a
// failure even though the child process reported success.
type ContractError struct {
	Stage   string
	Missing []string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("stage '%s' exited 0 but did not produce declared outputs: %s",
		e.Stage, strings.Join(e.Missing, ", "))
}

// InputError reports declared inputs absent at execution time. The global
// preflight ran earlier; this defensive recheck exists because time has
// passed since then.
type InputError struct {
	Stage   string
	Missing []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("stage '%s' is missing required inputs: %s",
		e.Stage, strings.Join(e.Missing, ", "))
}

// Result describes a successfully completed stage.
type Result struct {
	Stage    string
	LogPath  string
	Duration time.Duration
}

// Runner executes stages against a fixed workspace.
type Runner struct {
	ws      *workspace.Workspace
	console io.Writer
}

// NewRunner returns a Runner that tees stage output to console alongside
// each stage's log file.
func NewRunner(ws *workspace.Workspace, console io.Writer) *Runner {
	return &Runner{ws: ws, console: console}
}

// Run executes one stage. On any failure the stage's declared outputs are
// removed: a failed or cancelled stage has no defined outputs, and leaving
// partial files around would let a later run mistake them for valid
// predecessor artifacts.
func (r *Runner) Run(ctx context.Context, st manifest.Stage) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("stage", st.Name, "ordinal", st.Ordinal)

	if missing := missingFiles(st.Inputs); len(missing) > 0 {
		return nil, &InputError{Stage: st.Name, Missing: missing}
	}

	logPath := filepath.Join(r.ws.LogDir, st.LogName())
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("creating stage log %s: %w", logPath, err)
	}
	defer logFile.Close()

	tee := io.MultiWriter(logFile, r.console)
	cmd := exec.CommandContext(ctx, st.Command, st.Args...)
	cmd.Dir = r.ws.Root
	cmd.Env = r.ws.Environ(os.Environ())
	cmd.Stdout = tee
	cmd.Stderr = tee

	logger.Info("▶️ Running stage.", "command", st.Command, "args", st.Args, "log", logPath)
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.discardOutputs(logger, st)
		return nil, fmt.Errorf("stage '%s' cancelled: %w", st.Name, ctxErr)
	}
	if runErr != nil {
		r.discardOutputs(logger, st)
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, &ExitError{Stage: st.Name, Code: exitErr.ExitCode()}
		}
		return nil, fmt.Errorf("stage '%s' could not start: %w", st.Name, runErr)
	}

	if missing := missingFiles(st.Outputs); len(missing) > 0 {
		r.discardOutputs(logger, st)
		return nil, &ContractError{Stage: st.Name, Missing: missing}
	}

	logger.Info("✅ Stage finished.", "duration", elapsed.String())
	return &Result{Stage: st.Name, LogPath: logPath, Duration: elapsed}, nil
}

// discardOutputs removes whatever declared outputs a failed stage left
// behind. The stage log survives for post-mortem; the artifacts do not.
func (r *Runner) discardOutputs(logger *slog.Logger, st manifest.Stage) {
	for _, out := range st.Outputs {
		if _, err := os.Stat(out); err == nil {
			if err := os.Remove(out); err != nil {
				logger.Warn("Could not remove partial output.", "path", out, "error", err)
				continue
			}
			logger.Warn("Removed partial output of failed stage.", "path", out)
		}
	}
}

// missingFiles returns the paths that do not exist as non-empty files.
func missingFiles(paths []string) []string {
	var missing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() || info.Size() == 0 {
			missing = append(missing, p)
		}
	}
	return missing
}
