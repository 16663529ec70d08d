package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/genopipe/internal/testutil"
)

func TestCheck_CollectsAllFailures(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "data", "panel.bed")

	result := Check(context.Background(),
		[]ToolRequirement{
			{Name: "genopipe-test-no-such-tool-a"},
			{Name: "genopipe-test-no-such-tool-b"},
		},
		[]ArtifactRequirement{{Path: missing, NeededBy: "gene_test"}},
	)

	require.False(t, result.OK())
	require.Len(t, result.Failures, 3)
	assert.Equal(t, ToolMissing, result.Failures[0].Kind)
	assert.Equal(t, "genopipe-test-no-such-tool-a", result.Failures[0].Subject)
	assert.Equal(t, ToolMissing, result.Failures[1].Kind)
	assert.Equal(t, ArtifactMissing, result.Failures[2].Kind)
	assert.Contains(t, result.Failures[2].Detail, "gene_test")
}

func TestCheck_PassesWithPresentToolAndArtifact(t *testing.T) {
	dir := t.TempDir()
	testutil.FakeTool(t, dir, "faketool", "exit 0")

	artifact := filepath.Join(dir, "input.vcf")
	require.NoError(t, os.WriteFile(artifact, []byte("##fileformat=VCFv4.2\n"), 0o644))

	result := Check(context.Background(),
		[]ToolRequirement{{Name: "faketool"}},
		[]ArtifactRequirement{{Path: artifact}},
	)
	assert.True(t, result.OK())
}

func TestCheck_EmptyArtifactIsMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	result := Check(context.Background(), nil, []ArtifactRequirement{{Path: empty}})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, ArtifactMissing, result.Failures[0].Kind)
	assert.Contains(t, result.Failures[0].Detail, "empty")
}

func TestCheck_TruncatedGzipIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	payload := testutil.GzipBytes(t, []byte("chr1\t12345\trs671\n"))
	truncated := filepath.Join(dir, "catalog.vcf.gz")
	require.NoError(t, os.WriteFile(truncated, payload[:len(payload)-6], 0o644))

	result := Check(context.Background(), nil, []ArtifactRequirement{{Path: truncated}})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, ArtifactCorrupt, result.Failures[0].Kind)
	assert.Equal(t, truncated, result.Failures[0].Subject)
}

func TestCheck_IntactGzipPasses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.vcf.gz")
	require.NoError(t, os.WriteFile(path, testutil.GzipBytes(t, []byte("chr1\t12345\trs671\n")), 0o644))

	result := Check(context.Background(), nil, []ArtifactRequirement{{Path: path}})
	assert.True(t, result.OK())
}

func TestCheck_CorruptZipDetected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panel.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 definitely not a zip"), 0o644))

	result := Check(context.Background(), nil, []ArtifactRequirement{{Path: path}})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, ArtifactCorrupt, result.Failures[0].Kind)
}

func TestCheck_VersionPredicate(t *testing.T) {
	dir := t.TempDir()
	testutil.FakeTool(t, dir, "oldtool", `echo "oldtool 1.2.3 (using htslib 1.2)"`)

	tooOld := Check(context.Background(),
		[]ToolRequirement{{Name: "oldtool", VersionMin: "1.9"}}, nil)
	require.Len(t, tooOld.Failures, 1)
	assert.Equal(t, ToolTooOld, tooOld.Failures[0].Kind)
	assert.Contains(t, tooOld.Failures[0].Detail, "1.2.3")

	newEnough := Check(context.Background(),
		[]ToolRequirement{{Name: "oldtool", VersionMin: "1.2"}}, nil)
	assert.True(t, newEnough.OK())
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.9", "1.9.0"))
	assert.Equal(t, -1, compareVersions("1.9", "1.10"))
	assert.Equal(t, 1, compareVersions("2.0", "1.19.2"))
}

func TestReport_OneLinePerFailure(t *testing.T) {
	result := Result{Failures: []Failure{
		{Kind: ToolMissing, Subject: "magma", Detail: "not found on PATH"},
		{Kind: ArtifactMissing, Subject: "/data/g1000_eur.bed"},
	}}
	report := result.Report()
	assert.Contains(t, report, "- tool missing: magma")
	assert.Contains(t, report, "- artifact missing: /data/g1000_eur.bed")
}
