package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	c, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "stordb.sqlite3", c.DBPath)
	assert.False(t, c.Debug)
	assert.Equal(t, "stordb.log", c.Log.File)
	assert.Equal(t, "vault.ansible", c.Vault.Path)
	assert.Equal(t, "ansible", c.Vault.Cipher)
	assert.Equal(t, "ansible-vault", c.Vault.Tool)
	assert.Equal(t, "VAULT_PASSWORD", c.Vault.PasswordEnv)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("STORDB_DB_PATH", "/data/devices.sqlite3")
	t.Setenv("STORDB_VAULT_PATH", "/backups/devices.vault")
	t.Setenv("STORDB_DEBUG", "true")
	t.Setenv("STORDB_LOG_MAX_BACKUPS", "9")

	c, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/data/devices.sqlite3", c.DBPath)
	assert.Equal(t, "/backups/devices.vault", c.Vault.Path)
	assert.True(t, c.Debug)
	assert.Equal(t, 9, c.Log.MaxBackups)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stordb.yaml"), []byte(`
db_path: from-file.sqlite3
vault:
  cipher: sealed
log:
  file: logs/audit.log
`), 0600))

	c, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from-file.sqlite3", c.DBPath)
	assert.Equal(t, "sealed", c.Vault.Cipher)
	assert.Equal(t, "logs/audit.log", c.Log.File)

	// Environment beats the file, flags beat both.
	t.Setenv("STORDB_DB_PATH", "from-env.sqlite3")
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("db", "", "")
	cmd.Flags().Bool("debug", false, "")
	c, err = Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env.sqlite3", c.DBPath)
	assert.False(t, c.Debug)

	require.NoError(t, cmd.Flags().Set("db", "from-flag.sqlite3"))
	require.NoError(t, cmd.Flags().Set("debug", "true"))
	c, err = Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, "from-flag.sqlite3", c.DBPath)
	assert.True(t, c.Debug)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	dir := isolate(t)
	_, err := Load(nil, filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "stordb.yaml")

	c, err := Load(nil, "")
	require.NoError(t, err)
	c.DBPath = "written.sqlite3"
	c.Vault.Cipher = "tool"
	require.NoError(t, WriteFile(c, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestSinkConfig(t *testing.T) {
	c := &Config{Debug: true, Log: LogConfig{File: "a.log", MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 3}}
	sc := c.SinkConfig()
	assert.True(t, sc.Debug)
	assert.Equal(t, "a.log", sc.File)
	assert.Equal(t, 2, sc.MaxBackups)
}
