package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUpload(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestResolveInputPicksNewestMatch(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	writeUpload(t, dir, "1722500000_manifest.csv", base)
	writeUpload(t, dir, "1722600000_manifest.csv", base.Add(time.Hour))
	writeUpload(t, dir, "unrelated.csv", base.Add(2*time.Hour))

	path, err := ResolveInput("manifest.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1722600000_manifest.csv"), path)
}

func TestResolveInputStripsExtensionBeforeMatching(t *testing.T) {
	dir := t.TempDir()
	writeUpload(t, dir, "20260801_manifest.xlsx", time.Now())

	// The stored copy kept a different extension than the logical name.
	path, err := ResolveInput("manifest.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260801_manifest.xlsx"), path)
}

func TestResolveInputLexicalTiebreakOnEqualModTime(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	writeUpload(t, dir, "a_manifest.csv", mod)
	writeUpload(t, dir, "b_manifest.csv", mod)

	path, err := ResolveInput("manifest.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b_manifest.csv"), path)
}

func TestResolveInputIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "manifest_archive"), 0o750))
	writeUpload(t, dir, "old_manifest.csv", time.Now().Add(-time.Hour))

	path, err := ResolveInput("manifest.csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "old_manifest.csv"), path)
}

func TestResolveInputNotFound(t *testing.T) {
	dir := t.TempDir()
	writeUpload(t, dir, "something_else.csv", time.Now())

	_, err := ResolveInput("manifest.csv", dir)
	assert.ErrorIs(t, err, ErrInputFileNotFound)

	_, err = ResolveInput(".csv", dir)
	assert.ErrorIs(t, err, ErrInputFileNotFound)
}
