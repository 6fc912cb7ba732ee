// ABOUTME: Tests for .env loading
// ABOUTME: Checks priority between files and the process environment

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte("ATTUNED_TEST_A=local\n"), 0600))
	require.NoError(t, os.WriteFile(shared, []byte("ATTUNED_TEST_A=shared\nATTUNED_TEST_B=shared\nATTUNED_TEST_C=shared\n"), 0600))

	t.Setenv("ATTUNED_TEST_C", "process")
	// registered so t.Setenv restores them after the test
	t.Setenv("ATTUNED_TEST_A", "")
	t.Setenv("ATTUNED_TEST_B", "")
	require.NoError(t, os.Unsetenv("ATTUNED_TEST_A"))
	require.NoError(t, os.Unsetenv("ATTUNED_TEST_B"))

	require.NoError(t, LoadEnvFiles(local, shared, filepath.Join(dir, "missing.env")))

	assert.Equal(t, "local", os.Getenv("ATTUNED_TEST_A"))
	assert.Equal(t, "shared", os.Getenv("ATTUNED_TEST_B"))
	assert.Equal(t, "process", os.Getenv("ATTUNED_TEST_C"))
}

func TestLoadEnvFiles_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=value\n"), 0600))

	err := LoadEnvFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestLoadEnvFilesForConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ATTUNED_TEST_CFG=beside-config\n"), 0600))
	t.Setenv("ATTUNED_TEST_CFG", "")
	require.NoError(t, os.Unsetenv("ATTUNED_TEST_CFG"))
	t.Chdir(t.TempDir())

	require.NoError(t, LoadEnvFilesForConfig(filepath.Join(dir, "gateway.yaml")))
	assert.Equal(t, "beside-config", os.Getenv("ATTUNED_TEST_CFG"))
}
