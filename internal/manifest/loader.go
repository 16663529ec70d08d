package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/genopipe/internal/ctxlog"
	"github.com/vk/genopipe/internal/fsutil"
	"github.com/vk/genopipe/internal/workspace"
)

// Load parses every .hcl file at path (a single file or a directory) into a
// validated Pipeline. Path attributes in the manifest reference the resolved
// workspace through interpolation variables: root, bin_dir, data_dir,
// out_dir, tools_dir and log_dir.
func Load(ctx context.Context, ws *workspace.Workspace, path string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("discovering manifest files under %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl manifest files found under %s", path)
	}
	logger.Debug("Discovered manifest files.", "count", len(files))

	evalCtx := evalContext(ws)
	parser := hclparse.NewParser()
	pipeline := &Pipeline{}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing manifest %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decoding manifest %s: %w", file, diags)
		}

		mergeFile(pipeline, &root)
	}

	numberStages(pipeline)
	if err := validate(pipeline); err != nil {
		return nil, err
	}

	logger.Debug("Manifest loaded.",
		"pipeline", pipeline.Name,
		"stages", len(pipeline.Stages),
		"bundles", len(pipeline.Bundles),
		"tools", len(pipeline.Tools))
	return pipeline, nil
}

// evalContext exposes the workspace layout to manifest expressions so that
// no manifest ever hardcodes an absolute path.
func evalContext(ws *workspace.Workspace) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"root":      cty.StringVal(ws.Root),
			"bin_dir":   cty.StringVal(ws.BinDir),
			"data_dir":  cty.StringVal(ws.DataDir),
			"out_dir":   cty.StringVal(ws.OutDir),
			"tools_dir": cty.StringVal(ws.ToolsDir),
			"log_dir":   cty.StringVal(ws.LogDir),
		},
	}
}

// mergeFile folds one decoded file into the model, preserving block order.
func mergeFile(p *Pipeline, root *fileRoot) {
	for _, pb := range root.Pipelines {
		p.Name = pb.Name
		p.Description = pb.Description
	}
	for _, tb := range root.Tools {
		p.Tools = append(p.Tools, Tool{Name: tb.Name, VersionMin: tb.VersionMin})
	}
	for _, bb := range root.Bundles {
		p.Bundles = append(p.Bundles, Bundle{
			Name:         bb.Name,
			URL:          bb.URL,
			Archive:      bb.Archive,
			ExtractTo:    bb.ExtractTo,
			Markers:      bb.Markers,
			RebuildIndex: bb.RebuildIndex,
		})
	}
	for _, sb := range root.Stages {
		p.Stages = append(p.Stages, Stage{
			Name:    sb.Name,
			Command: sb.Command,
			Args:    sb.Args,
			Inputs:  sb.Inputs,
			Outputs: sb.Outputs,
			Tools:   sb.Tools,
		})
	}
}

func numberStages(p *Pipeline) {
	for i := range p.Stages {
		p.Stages[i].Ordinal = i + 1
	}
}
