package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coreauthz/policyd/plog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	plog.Initialize(false)
	defer plog.Close()
	os.Exit(m.Run())
}

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaultConfig(t *testing.T) {
	withHome(t)
	cfg := DefaultConfig()
	assert.NotEmpty(t, cfg.StorageDir)
	assert.Equal(t, DefaultSocketPath, cfg.SocketPath)
	assert.Equal(t, 5000, cfg.CheckpointIntervalMS)
	assert.Equal(t, 10000, cfg.AgentReplyTimeoutMS)
}

func TestLoadConfigCreatesDefaultWhenMissing(t *testing.T) {
	home := withHome(t)

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	configPath := filepath.Join(home, ".policyd", ConfigFileName)
	_, err := os.Stat(configPath)
	assert.NoError(t, err, "LoadConfig should persist a default config on first run")
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	withHome(t)

	cfg := DefaultConfig()
	cfg.SocketPath = "/tmp/custom.sock"
	cfg.CheckpointIntervalMS = 1234
	require.NoError(t, SaveConfig(cfg))

	loaded := LoadConfig()
	assert.Equal(t, cfg.SocketPath, loaded.SocketPath)
	assert.Equal(t, cfg.CheckpointIntervalMS, loaded.CheckpointIntervalMS)
}

func TestLoadConfigFallsBackOnCorruptFile(t *testing.T) {
	home := withHome(t)

	dir := filepath.Join(home, ".policyd")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("not json"), 0o644))

	cfg := LoadConfig()
	assert.Equal(t, DefaultSocketPath, cfg.SocketPath)
}
