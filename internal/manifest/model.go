// Package manifest loads and validates the declarative pipeline definition:
// which tools a run depends on, which resource bundles the setup phase must
// acquire, and the ordered chain of stages the run phase executes.
package manifest

import "fmt"

// Pipeline is the format-agnostic model the engine consumes. Stage order is
// declaration order and is the execution order.
type Pipeline struct {
	Name        string
	Description string
	Tools       []Tool
	Bundles     []Bundle
	Stages      []Stage
}

// Tool declares an external executable a run depends on, detected by name on
// the search path. VersionMin, when set, is a minimum dotted-version
// predicate checked during preflight.
type Tool struct {
	Name       string
	VersionMin string
}

// Bundle declares an external resource acquired once by the setup phase.
// Markers are the files whose joint presence proves a prior successful
// acquisition; they gate re-fetching. For a plain (non-archive) payload,
// Archive is the final downloaded file itself and ExtractTo is empty.
type Bundle struct {
	Name      string
	URL       string
	Archive   string
	ExtractTo string
	Markers   []string
	// RebuildIndex is an optional command (argv form) run after extraction to
	// regenerate index sidecars locally instead of trusting bundled copies.
	RebuildIndex []string
}

// Stage is one ordered unit of pipeline work. Inputs must exist before the
// stage runs; Outputs must exist after it exits zero, or the stage has
// violated its contract.
type Stage struct {
	Ordinal int
	Name    string
	Command string
	Args    []string
	Inputs  []string
	Outputs []string
	Tools   []string
}

// LogName returns the stage's log file name, unique and ordered within a
// run's log directory.
func (s Stage) LogName() string {
	return fmt.Sprintf("%02d_%s.log", s.Ordinal, s.Name)
}

// ArtifactNeed is an input no stage produces, attributed to the first stage
// that consumes it.
type ArtifactNeed struct {
	Path     string
	NeededBy string
}

// ExternalInputs returns every stage input that is not produced by an
// earlier stage. These are the artifacts preflight must verify up front,
// because no stage in the chain will create them.
func (p *Pipeline) ExternalInputs() []ArtifactNeed {
	produced := make(map[string]bool)
	seen := make(map[string]bool)
	var external []ArtifactNeed
	for _, st := range p.Stages {
		for _, in := range st.Inputs {
			if !produced[in] && !seen[in] {
				seen[in] = true
				external = append(external, ArtifactNeed{Path: in, NeededBy: st.Name})
			}
		}
		for _, out := range st.Outputs {
			produced[out] = true
		}
	}
	return external
}

// ToolUnion returns the union of pipeline-level tool declarations and every
// tool referenced by a stage, deduplicated, declaration order first.
func (p *Pipeline) ToolUnion() []Tool {
	byName := make(map[string]bool, len(p.Tools))
	union := make([]Tool, 0, len(p.Tools))
	for _, t := range p.Tools {
		if !byName[t.Name] {
			byName[t.Name] = true
			union = append(union, t)
		}
	}
	for _, st := range p.Stages {
		for _, name := range st.Tools {
			if !byName[name] {
				byName[name] = true
				union = append(union, Tool{Name: name})
			}
		}
	}
	return union
}
