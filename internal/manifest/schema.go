package manifest

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all possible top-level blocks from any manifest file.
type fileRoot struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
	Tools     []*toolBlock     `hcl:"tool,block"`
	Bundles   []*bundleBlock   `hcl:"bundle,block"`
	Stages    []*stageBlock    `hcl:"stage,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type pipelineBlock struct {
	Name        string `hcl:"name,label"`
	Description string `hcl:"description,optional"`
}

type toolBlock struct {
	Name       string `hcl:"name,label"`
	VersionMin string `hcl:"version_min,optional"`
}

type bundleBlock struct {
	Name         string   `hcl:"name,label"`
	URL          string   `hcl:"url"`
	Archive      string   `hcl:"archive"`
	ExtractTo    string   `hcl:"extract_to,optional"`
	Markers      []string `hcl:"markers"`
	RebuildIndex []string `hcl:"rebuild_index,optional"`
}

type stageBlock struct {
	Name    string   `hcl:"name,label"`
	Command string   `hcl:"command"`
	Args    []string `hcl:"args,optional"`
	Inputs  []string `hcl:"inputs,optional"`
	Outputs []string `hcl:"outputs,optional"`
	Tools   []string `hcl:"tools,optional"`
}
