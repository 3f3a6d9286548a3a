package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir runs the test from an empty directory with HOME pointed at it, so no
// real config file is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("YOUTUBE_API_KEY", "")
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxPerChannel)
	assert.Equal(t, 100, cfg.FeedLimit)
	assert.Equal(t, 60, cfg.ShortMaxSeconds)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "Other", cfg.FallbackCategory)
	assert.Equal(t, "mytube-v2", cfg.CacheName)
}

func TestLoad_NoFile(t *testing.T) {
	chdir(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feedsync.yaml"), []byte(`
registry_url: https://docs.google.com/spreadsheets/d/x/export?format=csv
fallback_category: Altres
request_timeout: 10s
max_concurrent: 4
asset_paths:
  - ./
  - ./index.html
`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/x/export?format=csv", cfg.RegistryURL)
	assert.Equal(t, "Altres", cfg.FallbackCategory)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, []string{"./", "./index.html"}, cfg.AssetPaths)
	assert.Equal(t, 5, cfg.MaxPerChannel, "defaults survive")
}

func TestLoad_JSONFileInHome(t *testing.T) {
	dir := chdir(t)
	confDir := filepath.Join(dir, ".config", "feedsync")
	require.NoError(t, os.MkdirAll(confDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "feedsync.json"), []byte(`{"feed_limit": 50}`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.FeedLimit)
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := chdir(t)
	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("feed_path: out/feed.json\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/feed.json", cfg.FeedPath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feedsync.yaml"), []byte("feed_limit: 50\napi_key: from-file\n"), 0o644))
	t.Setenv("FEEDSYNC_FEED_LIMIT", "20")
	t.Setenv("FEEDSYNC_MAX_BACKOFF", "1m")
	t.Setenv("FEEDSYNC_ASSET_PATHS", "./a.js, ./b.css,")
	t.Setenv("YOUTUBE_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.FeedLimit)
	assert.Equal(t, time.Minute, cfg.MaxBackoff)
	assert.Equal(t, []string{"./a.js", "./b.css"}, cfg.AssetPaths)
	assert.Equal(t, "from-file", cfg.APIKey, "YOUTUBE_API_KEY only fills an empty key")
}

func TestLoad_APIKeyFromEnv(t *testing.T) {
	chdir(t)
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "yt-key", cfg.APIKey)
}

func TestLoad_BadEnv(t *testing.T) {
	chdir(t)
	t.Setenv("FEEDSYNC_MAX_RETRIES", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "FEEDSYNC_MAX_RETRIES")
}

func TestLoad_BadFile(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feedsync.yaml"), []byte("feed_limit: [oops"), 0o644))
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty feed path", func(c *Config) { c.FeedPath = "" }},
		{"empty channels path", func(c *Config) { c.ChannelsPath = "" }},
		{"zero per channel", func(c *Config) { c.MaxPerChannel = 0 }},
		{"zero feed limit", func(c *Config) { c.FeedLimit = 0 }},
		{"zero short max", func(c *Config) { c.ShortMaxSeconds = 0 }},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -1 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero backoff", func(c *Config) { c.InitialBackoff = 0 }},
		{"backoff inverted", func(c *Config) { c.MaxBackoff = time.Millisecond }},
		{"unknown store", func(c *Config) { c.AssetStore = "s3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 4
	rc := cfg.RetryConfig()
	assert.Equal(t, 4, rc.MaxRetries)
	assert.Equal(t, cfg.InitialBackoff, rc.InitialBackoff)
	assert.Equal(t, cfg.MaxBackoff, rc.MaxBackoff)
	assert.Equal(t, 2.0, rc.Multiplier)
}
