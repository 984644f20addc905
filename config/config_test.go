package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctvwall/cctvwall/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://nvr-api:8080
  request_timeout_seconds: 5
player:
  substream: false
viewport:
  policy: once
cameras:
  - id: lobby-1
    name: Lobby
    location: HQ
    nvr_id: nvr-1
    channel: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://nvr-api:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 5, cfg.Backend.RequestTimeout)
	assert.False(t, cfg.Player.Substream)
	assert.True(t, cfg.Player.WebRTC, "unset keys keep defaults")
	assert.Equal(t, ViewportOnce, cfg.Viewport.Policy)
	require.Len(t, cfg.Cameras, 1)
	assert.Equal(t, "nvr-1", cfg.Cameras[0].NVRID)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CCTVWALL_BACKEND_URL", "http://override:9000")
	t.Setenv("CCTVWALL_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 9191, cfg.Web.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad policy", func(c *Config) { c.Viewport.Policy = "sometimes" }},
		{"no backend", func(c *Config) { c.Backend.BaseURL = "" }},
		{"bad port", func(c *Config) { c.Web.Port = 0 }},
		{"camera without source", func(c *Config) {
			c.Cameras = append(c.Cameras, cameraWithID("a", "", ""))
		}},
		{"duplicate camera", func(c *Config) {
			c.Cameras = append(c.Cameras, cameraWithID("a", "nvr", ""), cameraWithID("a", "nvr", ""))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func cameraWithID(id, nvrID, streamURL string) models.Camera {
	return models.Camera{ID: id, NVRID: nvrID, StreamURL: streamURL}
}
