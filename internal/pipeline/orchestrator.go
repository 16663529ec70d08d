// Package pipeline owns the ordered stage chain: one preflight over the
// union of every stage's prerequisites, then strictly sequential execution
// that stops on the first failure. There is no retry or skip policy here;
// stage failures are not self-healing and are surfaced to the operator
// verbatim.
package pipeline

import (
	"context"
	"fmt"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/manifest"
	"github.com/vk/genopipe/internal/preflight"
	"github.com/vk/genopipe/internal/stage"
)

// PreflightError aborts a run before any stage executes. Running even one
// stage with known-missing prerequisites would produce artifacts downstream
// stages cannot trust.
type PreflightError struct {
	Result preflight.Result
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight found %d missing prerequisites:\n%s",
		len(e.Result.Failures), e.Result.Report())
}

// Summary lists each completed stage and its log location.
type Summary struct {
	Pipeline string
	Stages   []stage.Result
}

// Orchestrator drives one pipeline over one stage runner.
type Orchestrator struct {
	pipeline *manifest.Pipeline
	runner   *stage.Runner
}

// New returns an Orchestrator for the given pipeline.
func New(p *manifest.Pipeline, runner *stage.Runner) *Orchestrator {
	return &Orchestrator{pipeline: p, runner: runner}
}

// RunAll validates the full prerequisite set once, then executes the stages
// in declaration order. The first stage failure stops the run immediately:
// each stage's inputs are guaranteed only by its predecessor's success, so
// later stages have no defined behavior.
func (o *Orchestrator) RunAll(ctx context.Context) (*Summary, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", o.pipeline.Name)

	tools := make([]preflight.ToolRequirement, 0, len(o.pipeline.Tools))
	for _, t := range o.pipeline.ToolUnion() {
		tools = append(tools, preflight.ToolRequirement{Name: t.Name, VersionMin: t.VersionMin})
	}
	external := o.pipeline.ExternalInputs()
	artifacts := make([]preflight.ArtifactRequirement, 0, len(external))
	for _, need := range external {
		artifacts = append(artifacts, preflight.ArtifactRequirement{
			Path:     need.Path,
			NeededBy: need.NeededBy,
		})
	}

	logger.Info("🔍 Preflight: validating prerequisites.",
		"tools", len(tools), "artifacts", len(artifacts))
	if result := preflight.Check(ctx, tools, artifacts); !result.OK() {
		return nil, &PreflightError{Result: result}
	}
	logger.Info("✅ Preflight passed.")

	summary := &Summary{Pipeline: o.pipeline.Name}
	total := len(o.pipeline.Stages)
	for _, st := range o.pipeline.Stages {
		logger.Info("🚀 Starting stage.", "stage", st.Name, "position", fmt.Sprintf("%d/%d", st.Ordinal, total))
		result, err := o.runner.Run(ctx, st)
		if err != nil {
			return nil, err
		}
		summary.Stages = append(summary.Stages, *result)
	}

	logger.Info("🏁 Pipeline finished.", "stages", total)
	for _, res := range summary.Stages {
		logger.Info("Stage log.", "stage", res.Stage, "log", res.LogPath)
	}
	return summary, nil
}
