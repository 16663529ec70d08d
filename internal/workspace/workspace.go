// Package workspace resolves the pipeline's working root and the canonical
// directory layout derived from it. Resolution is pure: no directories are
// created here, and the same invocation directory always yields the same
// Workspace.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// markerDir is the subdirectory whose presence identifies the workspace root.
// The stage scripts live inside it.
const markerDir = "bin"

// Workspace holds the resolved root and every path derived from it. It is
// constructed once per run and passed by value to every component; nothing
// reads these paths from the environment or from globals.
type Workspace struct {
	Root     string
	BinDir   string
	DataDir  string
	OutDir   string
	ToolsDir string
	LogDir   string
}

// RootNotFoundError reports that neither candidate directory contained the
// marker subdirectory.
type RootNotFoundError struct {
	Tried []string
}

func (e *RootNotFoundError) Error() string {
	return fmt.Sprintf("workspace root not found: no %q directory inside %s or %s",
		markerDir, e.Tried[0], e.Tried[1])
}

// Resolve determines the workspace root starting from invocationDir. The
// orchestrator may be launched either from the workspace root itself or from
// a nested driver location one level below it, so the marker directory is
// checked in invocationDir first and in its parent second. Any other layout
// is a RootNotFoundError naming both directories tried.
func Resolve(invocationDir string) (*Workspace, error) {
	abs, err := filepath.Abs(invocationDir)
	if err != nil {
		return nil, fmt.Errorf("resolving invocation directory %q: %w", invocationDir, err)
	}

	parent := filepath.Dir(abs)
	for _, candidate := range []string{abs, parent} {
		info, err := os.Stat(filepath.Join(candidate, markerDir))
		if err == nil && info.IsDir() {
			return derive(candidate), nil
		}
	}

	return nil, &RootNotFoundError{Tried: []string{abs, parent}}
}

// derive computes every path from the root. Relative names are part of the
// stable contract between the setup and run phases.
func derive(root string) *Workspace {
	return &Workspace{
		Root:     root,
		BinDir:   filepath.Join(root, markerDir),
		DataDir:  filepath.Join(root, "data"),
		OutDir:   filepath.Join(root, "output"),
		ToolsDir: filepath.Join(root, "tools"),
		LogDir:   filepath.Join(root, "logs"),
	}
}

// EnsureDirs creates the derived directories that the setup and run phases
// write into. Create-if-absent; the bin directory is deliberately excluded
// because its absence means resolution itself should have failed.
func (w *Workspace) EnsureDirs() error {
	for _, dir := range []string{w.DataDir, w.OutDir, w.ToolsDir, w.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating workspace directory %s: %w", dir, err)
		}
	}
	return nil
}

// Environ returns the environment assignments exported to every stage
// process so that scripts resolve data consistently no matter how they are
// invoked. PATH is prefixed with the tools directory so binaries acquired
// during setup resolve without shell profile edits.
func (w *Workspace) Environ(base []string) []string {
	env := make([]string, 0, len(base)+5)
	sawPath := false
	for _, kv := range base {
		if len(kv) >= 5 && kv[:5] == "PATH=" {
			env = append(env, "PATH="+w.ToolsDir+string(os.PathListSeparator)+kv[5:])
			sawPath = true
			continue
		}
		env = append(env, kv)
	}
	if !sawPath {
		env = append(env, "PATH="+w.ToolsDir)
	}
	env = append(env,
		"REPO_DIR="+w.Root,
		"BIN_DIR="+w.BinDir,
		"DATA_DIR="+w.DataDir,
		"OUT_DIR="+w.OutDir,
	)
	return env
}
