// Package preflight validates every external tool and artifact precondition
// before any stage runs. It collects all failures rather than stopping at
// the first, so one report can guide the whole remediation.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/genopipe/internal/ctxlog"
)

// ToolRequirement declares an external executable that must resolve on the
// search path, optionally with a minimum version.
type ToolRequirement struct {
	Name       string
	VersionMin string
}

// ArtifactRequirement declares a file that must exist well-formed before the
// pipeline starts. NeededBy names the stage that consumes it, so a failure
// report points at the right place.
type ArtifactRequirement struct {
	Path     string
	NeededBy string
}

// FailureKind classifies a preflight failure.
type FailureKind string

const (
	ToolMissing     FailureKind = "tool missing"
	ToolTooOld      FailureKind = "tool too old"
	ArtifactMissing FailureKind = "artifact missing"
	ArtifactCorrupt FailureKind = "artifact corrupt"
)

// Failure is one missing or invalid prerequisite.
type Failure struct {
	Kind    FailureKind
	Subject string
	Detail  string
}

func (f Failure) String() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Subject)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Subject, f.Detail)
}

// Result is the outcome of a preflight check.
type Result struct {
	Failures []Failure
}

// OK reports whether every prerequisite was satisfied.
func (r Result) OK() bool { return len(r.Failures) == 0 }

// Report renders all failures, one actionable line each.
func (r Result) Report() string {
	lines := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		lines[i] = "- " + f.String()
	}
	return strings.Join(lines, "\n")
}

// Check validates every tool and artifact requirement, in order, and returns
// all failures found. Detection spawns processes (for version probes) but
// has no other side effects.
func Check(ctx context.Context, tools []ToolRequirement, artifacts []ArtifactRequirement) Result {
	logger := ctxlog.FromContext(ctx)
	var result Result

	for _, tool := range tools {
		path, err := exec.LookPath(tool.Name)
		if err != nil {
			result.Failures = append(result.Failures, Failure{
				Kind:    ToolMissing,
				Subject: tool.Name,
				Detail:  "not found on PATH",
			})
			continue
		}
		logger.Debug("Tool located.", "tool", tool.Name, "path", path)

		if tool.VersionMin == "" {
			continue
		}
		version, err := probeVersion(ctx, tool.Name)
		if err != nil {
			// A tool that exists but reports no parseable version is treated
			// as present; version enforcement is best effort by contract.
			logger.Warn("Could not determine tool version.", "tool", tool.Name, "error", err)
			continue
		}
		if compareVersions(version, tool.VersionMin) < 0 {
			result.Failures = append(result.Failures, Failure{
				Kind:    ToolTooOld,
				Subject: tool.Name,
				Detail:  fmt.Sprintf("have %s, need >= %s", version, tool.VersionMin),
			})
		}
	}

	for _, artifact := range artifacts {
		if failure, bad := checkArtifact(artifact); bad {
			result.Failures = append(result.Failures, failure)
		}
	}

	return result
}

// checkArtifact verifies existence and non-emptiness, and for compressed
// formats a structural self-test. Silent truncation of large downloads is
// the dominant real-world failure mode, so file size alone is never trusted
// for those.
func checkArtifact(req ArtifactRequirement) (Failure, bool) {
	detail := func(msg string) string {
		if req.NeededBy == "" {
			return msg
		}
		return fmt.Sprintf("%s; needed by stage '%s'", msg, req.NeededBy)
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return Failure{Kind: ArtifactMissing, Subject: req.Path, Detail: detail("no such file")}, true
	}
	if info.IsDir() {
		return Failure{Kind: ArtifactCorrupt, Subject: req.Path, Detail: detail("is a directory, expected a file")}, true
	}
	if info.Size() == 0 {
		return Failure{Kind: ArtifactMissing, Subject: req.Path, Detail: detail("file is empty")}, true
	}

	if err := verifyCompressed(req.Path); err != nil {
		return Failure{Kind: ArtifactCorrupt, Subject: req.Path, Detail: detail(err.Error())}, true
	}

	return Failure{}, false
}
