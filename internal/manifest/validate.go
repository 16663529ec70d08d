package manifest

import (
	"fmt"
	"strings"
)

// validate performs a collect-all integrity check on the loaded model so a
// single report can guide remediation. The chain rule: a stage may consume
// another stage's output only if that stage is declared earlier, because
// execution is a strict linear chain.
func validate(p *Pipeline) error {
	var errs []string

	if p.Name == "" {
		errs = append(errs, "manifest must contain exactly one pipeline block with a name")
	}
	if len(p.Stages) == 0 {
		errs = append(errs, "manifest declares no stages")
	}

	stageNames := make(map[string]bool)
	for _, st := range p.Stages {
		if st.Name == "" {
			errs = append(errs, fmt.Sprintf("stage #%d has an empty name", st.Ordinal))
			continue
		}
		if stageNames[st.Name] {
			errs = append(errs, fmt.Sprintf("duplicate stage name '%s'", st.Name))
		}
		stageNames[st.Name] = true
		if st.Command == "" {
			errs = append(errs, fmt.Sprintf("stage '%s' has an empty command", st.Name))
		}
	}

	bundleNames := make(map[string]bool)
	for _, b := range p.Bundles {
		if bundleNames[b.Name] {
			errs = append(errs, fmt.Sprintf("duplicate bundle name '%s'", b.Name))
		}
		bundleNames[b.Name] = true
		if b.URL == "" {
			errs = append(errs, fmt.Sprintf("bundle '%s' has an empty url", b.Name))
		}
		if b.Archive == "" {
			errs = append(errs, fmt.Sprintf("bundle '%s' has an empty archive path", b.Name))
		}
		if len(b.Markers) == 0 {
			errs = append(errs, fmt.Sprintf("bundle '%s' declares no completion markers", b.Name))
		}
	}

	// Forward references break the linear chain: an input produced only by a
	// later stage can never exist when its consumer runs.
	producedBy := make(map[string]int)
	for _, st := range p.Stages {
		for _, out := range st.Outputs {
			if _, ok := producedBy[out]; !ok {
				producedBy[out] = st.Ordinal
			}
		}
	}
	for _, st := range p.Stages {
		for _, in := range st.Inputs {
			if producer, ok := producedBy[in]; ok && producer >= st.Ordinal {
				errs = append(errs, fmt.Sprintf(
					"stage '%s' consumes %s, which is first produced by stage #%d; stages form a strict forward chain",
					st.Name, in, producer))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
