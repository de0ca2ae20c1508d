package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/render"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName+".yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_HOST", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
	assert.False(t, cfg.DatabaseConfig().Enabled())
	assert.Equal(t, 5*time.Second, cfg.Navigation.ProximityInterval)
	assert.Equal(t, 100.0, cfg.Navigation.ArrivalRadius)
	assert.True(t, cfg.Render.FrameLoop)
	assert.Equal(t, render.TierMedium, cfg.Render.Tier())
	assert.Equal(t, 30, cfg.Render.TextureLimit)
	assert.Empty(t, cfg.PubSub.ProjectID)
	assert.Equal(t, "navigation-events", cfg.PubSub.Topic)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_File(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
navigation:
  arrivalRadius: 50
  indoorSwitchDelay: 500ms
render:
  initialTier: high
  frameLoop: false
providers:
  openRouteService:
    apiKey: ors-key
pubsub:
  projectId: wayfinder-dev
`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50.0, cfg.Navigation.ArrivalRadius)
	assert.Equal(t, 500*time.Millisecond, cfg.Navigation.IndoorSwitchDelay)
	assert.Equal(t, render.TierHigh, cfg.Render.Tier())
	assert.False(t, cfg.Render.FrameLoop)
	assert.Equal(t, "ors-key", cfg.Providers.OpenRouteService.APIKey)
	assert.Equal(t, "wayfinder-dev", cfg.PubSub.ProjectID)
	assert.Equal(t, "navigation-events", cfg.PubSub.Topic, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("WAYFINDER_SERVER_PORT", "7070")
	t.Setenv("WAYFINDER_RENDER_INITIALTIER", "low")

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, render.TierLow, cfg.Render.Tier())
}

func TestLoad_LegacyDatabaseEnv(t *testing.T) {
	t.Setenv("DB_HOST", "postgres")
	t.Setenv("DB_NAME", "venues")

	cfg, err := config.Load()
	require.NoError(t, err)

	db := cfg.DatabaseConfig()
	assert.True(t, db.Enabled())
	assert.Equal(t, "postgres", db.Host)
	assert.Equal(t, "venues", db.Database)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := writeConfig(t, "server: [unterminated\n")

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "port", body: "server:\n  port: 70000\n"},
		{name: "tier", body: "render:\n  initialTier: ultra\n"},
		{name: "frame rates", body: "render:\n  targetFrameRate: 10\n  minFrameRate: 20\n"},
		{name: "memory threshold", body: "render:\n  memoryThreshold: 1.5\n"},
		{name: "arrival radius", body: "navigation:\n  arrivalRadius: 0\n"},
		{name: "sample ratio", body: "telemetry:\n  sampleRatio: 2\n"},
		{name: "pubsub topic", body: "pubsub:\n  projectId: p\n  topic: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_SessionConfig(t *testing.T) {
	dir := writeConfig(t, `
navigation:
  proximityInterval: 2s
  watchInterval: 250ms
render:
  initialTier: low
  textureLimit: 12
  qualityInterval: 3s
  disableThermalThrottling: true
sessions:
  maxSessions: 5
`)
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, 2*time.Second, sc.Navigation.ProximityInterval)
	assert.Equal(t, 250*time.Millisecond, sc.WatchInterval)
	assert.Equal(t, render.TierLow, sc.InitialTier)
	assert.Equal(t, 12, sc.Cache.TextureLimit)
	assert.Equal(t, 3*time.Second, sc.Quality.Interval)
	assert.True(t, sc.Quality.DisableThermalThrottling)
	assert.True(t, sc.FrameLoop)

	mc := cfg.ManagerConfig(sc)
	assert.Equal(t, 5, mc.MaxSessions)
	assert.Equal(t, 30*time.Minute, mc.IdleTimeout)

	tc := cfg.TelemetryConfig("wayfinder", "1.2.3")
	assert.Equal(t, "wayfinder", tc.ServiceName)
	assert.Equal(t, "development", tc.Environment)
	assert.Equal(t, 15*time.Second, tc.MetricInterval)
}
