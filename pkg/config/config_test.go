package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.RegistryDir)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty registry dir", mutate: func(c *Config) { c.RegistryDir = "" }, wantErr: true},
		{name: "zero lock timeout", mutate: func(c *Config) { c.LockTimeout = 0 }, wantErr: true},
		{name: "negative lock retry interval", mutate: func(c *Config) { c.LockRetryInterval = -1 }, wantErr: true},
		{name: "zero event log size", mutate: func(c *Config) { c.EventLogMaxSizeMB = 0 }, wantErr: true},
		{name: "zero backup interval", mutate: func(c *Config) { c.BackupIntervalHours = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Config{RegistryDir: "/tmp/registry"}
	assert.Equal(t, filepath.Join("/tmp/registry", "tasksets"), cfg.TasksetsDir())
	assert.Equal(t, filepath.Join("/tmp/registry", "events"), cfg.EventsDir())
	assert.Equal(t, filepath.Join("/tmp/registry", "locks"), cfg.LocksDir())
	assert.Equal(t, filepath.Join("/tmp/registry", "backups"), cfg.BackupsDir())
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RegistryDir = filepath.Join(dir, "registry")
	cfg.BackupEnabled = true

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.RegistryDir, cfg.TasksetsDir(), cfg.EventsDir(), cfg.LocksDir(), cfg.BackupsDir()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEnsureDirectoriesSkipsBackupsWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.RegistryDir = filepath.Join(dir, "registry")
	cfg.BackupEnabled = false

	require.NoError(t, cfg.EnsureDirectories())
	_, err := os.Stat(cfg.BackupsDir())
	assert.True(t, os.IsNotExist(err))
}
