package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)

	assert.Equal(t, filepath.Dir(exe), paths.ExecutableDir)
	assert.Equal(t, filepath.Join(paths.ExecutableDir, "data"), paths.DataDir)
	assert.Equal(t, filepath.Join(paths.DataDir, "exports"), paths.ExportsDir)
}

func TestNewPaths(t *testing.T) {
	base := filepath.Join("/srv", "msy")
	abs := filepath.Join("/var", "exports")
	paths := NewPaths(base, PathsConfig{ExportsDir: abs, LogsDir: "var/log"})

	assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
	assert.Equal(t, abs, paths.ExportsDir)
	assert.Equal(t, filepath.Join(base, "var", "log"), paths.LogsDir)
	assert.Equal(t, filepath.Join(base, "data", "cache"), paths.CacheDir)

	assert.Equal(t, filepath.Join(abs, "qdf.csv"), paths.GetExportPath("qdf.csv"))
	assert.Equal(t, filepath.Join(base, "var", "log", "app.log"), paths.GetLogPath("app.log"))
	assert.Equal(t, filepath.Join(base, "data", "cache", "x"), paths.GetCachePath("x"))
	assert.Equal(t, filepath.Join(base, "sub"), paths.GetRelativePath("sub"))

	assert.Equal(t, filepath.Join(base, DefaultCredentialsFile), paths.GetCredentialsPath(""))
	assert.Equal(t, filepath.Join(base, "creds.yaml"), paths.GetCredentialsPath("creds.yaml"))
	assert.Equal(t, abs, paths.GetCredentialsPath(abs))
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	paths := NewPaths(base, Default().Paths)
	require.NoError(t, paths.EnsureDirectories())

	for _, dir := range []string{paths.DataDir, paths.ExportsDir, paths.CacheDir, paths.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.True(t, FileExists(paths.DataDir))
	assert.False(t, FileExists(filepath.Join(base, "missing")))
}

func TestConfigResolve(t *testing.T) {
	cfg := Default()
	cfg.Paths.BaseDir = t.TempDir()
	paths, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, cfg.Paths.BaseDir, paths.ExecutableDir)

	cfg.Paths.BaseDir = ""
	paths, err = cfg.Resolve()
	require.NoError(t, err)
	assert.NotEmpty(t, paths.ExecutableDir)
}
