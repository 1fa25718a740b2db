package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GAME_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16*1024*1024, cfg.Capture.CaptureMaxBytes())
	assert.Equal(t, 10*time.Second, cfg.Capture.UpdateInterval())
	assert.Equal(t, cfg.Capture.Directory, cfg.Replay.Directory)
	assert.Equal(t, cfg.Capture.CaptureMaxBytes(), cfg.Replay.ReadAheadBytes())
	assert.Equal(t, "memory", cfg.Catalog.Backend)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	data := []byte(`
server:
  tcp_port: 6000
capture:
  max_mbytes: 2
  update_rate_seconds: 3
  directory: caps
replay:
  read_ahead_mbytes: 1
catalog:
  backend: badger
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.GetTCPPort())
	assert.Equal(t, 2*1024*1024, cfg.Capture.CaptureMaxBytes())
	assert.Equal(t, 3*time.Second, cfg.Capture.UpdateInterval())
	assert.Equal(t, "caps", cfg.Replay.Directory)
	assert.Equal(t, 1024*1024, cfg.Replay.ReadAheadBytes())
	assert.Equal(t, "badger", cfg.Catalog.Backend)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPortEnvFallback(t *testing.T) {
	t.Setenv("GAME_REST_PORT", "9191")
	s := ServerConfig{}
	assert.Equal(t, 9191, s.GetRESTPort())

	t.Setenv("GAME_REST_PORT", "мусор")
	assert.Equal(t, 8088, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort())
}
