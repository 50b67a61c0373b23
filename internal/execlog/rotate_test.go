package execlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPartitions(t *testing.T, root string, months ...string) {
	t.Helper()
	for _, m := range months {
		dir := filepath.Join(root, m)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "01-a.jsonl"), []byte("{}\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "02-b.jsonl"), []byte("{}\n"), 0o644))
	}
}

func TestRotate_DeletesOldPartitions(t *testing.T) {
	root := t.TempDir()
	seedPartitions(t, root, "2025-12", "2026-03", "2026-04", "2026-10")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "triggers"), 0o755))
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	report, err := Rotate(root, 6, now, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-04", report.Cutoff)
	assert.False(t, report.DryRun)
	assert.Equal(t, []string{filepath.Join(root, "2025-12"), filepath.Join(root, "2026-03")}, report.Partitions)
	assert.Len(t, report.Files, 4)

	assert.NoDirExists(t, filepath.Join(root, "2025-12"))
	assert.NoDirExists(t, filepath.Join(root, "2026-03"))
	assert.DirExists(t, filepath.Join(root, "2026-04"))
	assert.DirExists(t, filepath.Join(root, "2026-10"))
	assert.DirExists(t, filepath.Join(root, "triggers"))
}

func TestRotate_DryRunReportsSameSet(t *testing.T) {
	root := t.TempDir()
	seedPartitions(t, root, "2025-01", "2026-10")
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	dry, err := Rotate(root, 6, now, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.DirExists(t, filepath.Join(root, "2025-01"))
	assert.FileExists(t, filepath.Join(root, "2025-01", "01-a.jsonl"))

	applied, err := Rotate(root, 6, now, false)
	require.NoError(t, err)
	assert.Equal(t, dry.Partitions, applied.Partitions)
	assert.Equal(t, dry.Files, applied.Files)
	assert.NoDirExists(t, filepath.Join(root, "2025-01"))
}

func TestRotate_MissingRoot(t *testing.T) {
	report, err := Rotate(filepath.Join(t.TempDir(), "none"), 0, time.Now(), false)
	require.NoError(t, err)
	assert.Empty(t, report.Partitions)
}

func TestRotate_CutoffCrossesYear(t *testing.T) {
	root := t.TempDir()
	seedPartitions(t, root, "2025-07", "2025-08")
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	report, err := Rotate(root, 6, now, false)
	require.NoError(t, err)
	assert.Equal(t, "2025-08", report.Cutoff)
	assert.Equal(t, []string{filepath.Join(root, "2025-07")}, report.Partitions)
}

func TestRotate_CutoffIsMonthGranular(t *testing.T) {
	for _, day := range []int{1, 19, 31} {
		root := t.TempDir()
		seedPartitions(t, root, "2026-03", "2026-04", "2026-05")
		now := time.Date(2026, 10, day, 23, 0, 0, 0, time.UTC)

		report, err := Rotate(root, 6, now, false)
		require.NoError(t, err)
		assert.Equal(t, "2026-04", report.Cutoff, "day %d", day)
		assert.Equal(t, []string{filepath.Join(root, "2026-03")}, report.Partitions, "day %d", day)
		assert.DirExists(t, filepath.Join(root, "2026-04"))
		assert.DirExists(t, filepath.Join(root, "2026-05"))
	}
}
