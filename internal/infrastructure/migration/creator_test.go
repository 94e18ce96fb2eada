package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add health records", "add_health_records"},
		{"Add-Health-Records", "add_health_records"},
		{"ADD_HEALTH_RECORDS", "add_health_records"},
		{"add__health__records", "add_health_records"},
		{"Staging Buckets 2", "staging_buckets_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigrationWritesPair(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "add sync runs", "run history table")
	require.NoError(t, err)
	require.NotNil(t, mf)

	// Timestamp version, YYYYMMDDHHMMSS.
	assert.Len(t, mf.Version, 14)
	assert.True(t, strings.HasSuffix(mf.UpPath, "_add_sync_runs.up.sql"))
	assert.True(t, strings.HasSuffix(mf.DownPath, "_add_sync_runs.down.sql"))

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add sync runs")
	assert.Contains(t, string(up), "run history table")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "rollback")
}

func TestCreateMigrationCreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "db", "migrations")

	_, err := CreateMigration(nested, "initial", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrationsPairsOnce(t *testing.T) {
	dir := t.TempDir()

	files := []string{
		"000001_initial_schema.up.sql",
		"000001_initial_schema.down.sql",
		"000002_add_staging.up.sql",
		"000002_add_staging.down.sql",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- sql"), 0o644))
	}

	names, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_initial_schema", "000002_add_staging"}, names)
}

func TestListMigrationsIgnoresStrays(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001_initial.up.sql"), []byte("-- sql"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001_initial.down.sql"), []byte("-- sql"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.up.sql"), 0o755))

	names, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_initial"}, names)
}

func TestListMigrationsMissingDirectory(t *testing.T) {
	names, err := ListMigrations(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
