package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/genopipe/internal/manifest"
	"github.com/vk/genopipe/internal/testutil"
	"github.com/vk/genopipe/internal/workspace"
)

func newTestWorkspace(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	root := testutil.NewWorkspaceDir(t, files)
	ws, err := workspace.Resolve(root)
	require.NoError(t, err)
	require.NoError(t, ws.EnsureDirs())
	return ws
}

func TestRun_TeesOutputToLogAndConsole(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	console := &testutil.SafeBuffer{}
	runner := NewRunner(ws, console)

	out := filepath.Join(ws.OutDir, "bcf_variants.vcf")
	st := manifest.Stage{
		Ordinal: 1,
		Name:    "make_bcftools_input",
		Command: "sh",
		Args:    []string{"-c", "echo converting variants; echo data > " + out},
		Outputs: []string{out},
	}

	result, err := runner.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "make_bcftools_input", result.Stage)

	logContent, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logContent), "converting variants")
	assert.Contains(t, console.String(), "converting variants")
	assert.Equal(t, filepath.Join(ws.LogDir, "01_make_bcftools_input.log"), result.LogPath)
}

func TestRun_NonZeroExitIsExitError(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	_, err := runner.Run(context.Background(), manifest.Stage{
		Ordinal: 2,
		Name:    "annotate_variants",
		Command: "sh",
		Args:    []string{"-c", "echo annotation failed >&2; exit 3"},
	})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "annotate_variants", exitErr.Stage)
	assert.Equal(t, 3, exitErr.Code)

	// stderr reaches the stage log even on failure
	logContent, err := os.ReadFile(filepath.Join(ws.LogDir, "02_annotate_variants.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logContent), "annotation failed")
}

func TestRun_ZeroExitWithoutDeclaredOutputIsContractViolation(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	missing := filepath.Join(ws.OutDir, "files_for_MAGMA.txt")
	_, err := runner.Run(context.Background(), manifest.Stage{
		Ordinal: 3,
		Name:    "make_magma_input",
		Command: "true",
		Outputs: []string{missing},
	})
	require.Error(t, err)

	var contractErr *ContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, "make_magma_input", contractErr.Stage)
	assert.Equal(t, []string{missing}, contractErr.Missing)
}

func TestRun_MissingInputFailsBeforeSpawn(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	canary := filepath.Join(ws.OutDir, "canary")
	_, err := runner.Run(context.Background(), manifest.Stage{
		Ordinal: 1,
		Name:    "make_bcftools_input",
		Command: "sh",
		Args:    []string{"-c", "touch " + canary},
		Inputs:  []string{filepath.Join(ws.DataDir, "sampleWES.zip")},
	})
	require.Error(t, err)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Contains(t, inputErr.Missing[0], "sampleWES.zip")

	_, statErr := os.Stat(canary)
	assert.True(t, os.IsNotExist(statErr), "process must not spawn with missing inputs")
}

func TestRun_FailedStagePartialOutputsAreDiscarded(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	partial := filepath.Join(ws.OutDir, "variants_with_rsID.vcf")
	_, err := runner.Run(context.Background(), manifest.Stage{
		Ordinal: 2,
		Name:    "annotate_variants",
		Command: "sh",
		Args:    []string{"-c", "echo partial > " + partial + "; exit 1"},
		Outputs: []string{partial},
	})
	require.Error(t, err)

	_, statErr := os.Stat(partial)
	assert.True(t, os.IsNotExist(statErr), "partial outputs of a failed stage must not survive")
}

func TestRun_CancellationKillsChildAndDiscardsOutputs(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	out := filepath.Join(ws.OutDir, "score.gz")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Run(ctx, manifest.Stage{
		Ordinal: 6,
		Name:    "scdrs_score",
		Command: "sh",
		Args:    []string{"-c", "echo x > " + out + "; sleep 60"},
		Outputs: []string{out},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second, "child must be terminated on cancellation")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_WorkspaceEnvReachesChild(t *testing.T) {
	ws := newTestWorkspace(t, nil)
	runner := NewRunner(ws, &testutil.SafeBuffer{})

	out := filepath.Join(ws.OutDir, "env.txt")
	_, err := runner.Run(context.Background(), manifest.Stage{
		Ordinal: 1,
		Name:    "env_probe",
		Command: "sh",
		Args:    []string{"-c", `echo "$REPO_DIR:$DATA_DIR:$OUT_DIR" > ` + out},
		Outputs: []string{out},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, ws.Root+":"+ws.DataDir+":"+ws.OutDir+"\n", string(content))
}
