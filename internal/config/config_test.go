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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Proxy.Enabled)
	assert.Equal(t, "port", cfg.Proxy.RotationMethod)
	assert.Equal(t, 10001, cfg.Proxy.PortRangeStart)
	assert.Equal(t, 10100, cfg.Proxy.PortRangeEnd)
	assert.Equal(t, "https://rateyourmusic.com", cfg.Browser.BaseURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Fetch.MinInterval())
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.True(t, cfg.Cache.Enabled)
	assert.InDelta(t, 0.8, cfg.Matching.Threshold, 1e-9)
	assert.True(t, cfg.Genres.ExpandParents)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy:
  enabled: true
  host: proxy.example.net
  port: 8080
  username: user
  password: secret
  rotation_method: username
  session_type: sticky
fetch:
  min_interval_seconds: 1.5
matching:
  threshold: 0.9
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Proxy.Enabled)
	assert.Equal(t, "http://proxy.example.net:8080", cfg.Proxy.ServerURL())
	assert.True(t, cfg.Proxy.HasCredentials())
	assert.Equal(t, "username", cfg.Proxy.RotationMethod)
	assert.Equal(t, 1500*time.Millisecond, cfg.Fetch.MinInterval())
	assert.InDelta(t, 0.9, cfg.Matching.Threshold, 1e-9)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RYMETA_BROWSER_BASE_URL", "https://rym.test")
	t.Setenv("RYMETA_FETCH_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://rym.test", cfg.Browser.BaseURL)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	t.Run("proxy enabled without host", func(t *testing.T) {
		cfg := base
		cfg.Proxy.Enabled = true
		require.Error(t, cfg.Validate())
	})

	t.Run("bad rotation method", func(t *testing.T) {
		cfg := base
		cfg.Proxy.Enabled = true
		cfg.Proxy.Host = "proxy.example.net"
		cfg.Proxy.Port = 8080
		cfg.Proxy.RotationMethod = "carrier-pigeon"
		require.Error(t, cfg.Validate())
	})

	t.Run("inverted port range", func(t *testing.T) {
		cfg := base
		cfg.Proxy.Enabled = true
		cfg.Proxy.Host = "proxy.example.net"
		cfg.Proxy.Port = 8080
		cfg.Proxy.PortRangeStart = 20000
		cfg.Proxy.PortRangeEnd = 10000
		require.Error(t, cfg.Validate())
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := base
		cfg.Matching.Threshold = 1.5
		require.Error(t, cfg.Validate())
	})

	t.Run("zero attempts", func(t *testing.T) {
		cfg := base
		cfg.Fetch.MaxAttempts = 0
		require.Error(t, cfg.Validate())
	})
}

func TestDurationFallbacks(t *testing.T) {
	var b BrowserConfig
	assert.Equal(t, 45*time.Second, b.NavTimeout())
	assert.Equal(t, 60*time.Second, b.ChallengeWait())
}
