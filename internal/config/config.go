// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Matching MatchingConfig `mapstructure:"matching"`
	Genres   GenresConfig   `mapstructure:"genres"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ProxyConfig describes the rotating egress proxy and its identity pool.
type ProxyConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	UseTLS          bool   `mapstructure:"use_tls"`
	RotationMethod  string `mapstructure:"rotation_method"` // "port" or "username"
	SessionType     string `mapstructure:"session_type"`    // "sticky", "rotate", "const"
	SessionIDLength int    `mapstructure:"session_id_length"`
	PortRangeStart  int    `mapstructure:"port_range_start"`
	PortRangeEnd    int    `mapstructure:"port_range_end"`
	AutoRotate      bool   `mapstructure:"auto_rotate_on_failure"`
	StateFile       string `mapstructure:"state_file"`
}

// BrowserConfig controls the headless browser collaborator.
type BrowserConfig struct {
	Headless          bool   `mapstructure:"headless"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	ChallengeWaitSec  int    `mapstructure:"challenge_wait_seconds"`
	BlockResources    bool   `mapstructure:"block_resources"`
	BaseURL           string `mapstructure:"base_url"`
	NetworkIdleWaitMS int    `mapstructure:"network_idle_wait_ms"`
}

// FetchConfig governs rate limiting and retry behavior of the access layer.
type FetchConfig struct {
	MinIntervalSec   float64 `mapstructure:"min_interval_seconds"`
	HumanizeInterval bool    `mapstructure:"humanize_interval"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
}

// CacheConfig sets paths and policy for the content cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	ExpiryDays int    `mapstructure:"expiry_days"`
}

// MatchingConfig tunes the fuzzy discography matching.
type MatchingConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// GenresConfig controls hierarchy expansion of extracted genres.
type GenresConfig struct {
	ExpandParents   bool `mapstructure:"expand_parents"`
	CacheExpiryDays int  `mapstructure:"cache_expiry_days"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RYMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.rotation_method", "port")
	v.SetDefault("proxy.session_type", "const")
	v.SetDefault("proxy.session_id_length", 10)
	v.SetDefault("proxy.port_range_start", 10001)
	v.SetDefault("proxy.port_range_end", 10100)
	v.SetDefault("proxy.auto_rotate_on_failure", true)
	v.SetDefault("proxy.state_file", ".rymeta_session_state.json")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.challenge_wait_seconds", 60)
	v.SetDefault("browser.block_resources", true)
	v.SetDefault("browser.base_url", "https://rateyourmusic.com")
	v.SetDefault("browser.network_idle_wait_ms", 500)

	v.SetDefault("fetch.min_interval_seconds", 3.0)
	v.SetDefault("fetch.humanize_interval", true)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_ms", 2000)
	v.SetDefault("fetch.backoff_max_ms", 30000)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", ".rymeta_cache")
	v.SetDefault("cache.expiry_days", 0)

	v.SetDefault("matching.threshold", 0.8)

	v.SetDefault("genres.expand_parents", true)
	v.SetDefault("genres.cache_expiry_days", 30)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9105")

	v.SetDefault("logging.development", false)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Proxy.Enabled {
		if c.Proxy.Host == "" || c.Proxy.Port == 0 {
			return fmt.Errorf("proxy enabled but host/port not set")
		}
		switch c.Proxy.RotationMethod {
		case "port", "username":
		default:
			return fmt.Errorf("unknown proxy rotation method %q", c.Proxy.RotationMethod)
		}
		switch c.Proxy.SessionType {
		case "sticky", "rotate", "const":
		default:
			return fmt.Errorf("unknown proxy session type %q", c.Proxy.SessionType)
		}
		if c.Proxy.PortRangeStart > c.Proxy.PortRangeEnd {
			return fmt.Errorf("proxy port range start %d exceeds end %d",
				c.Proxy.PortRangeStart, c.Proxy.PortRangeEnd)
		}
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch max attempts must be >= 1")
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold %v outside [0,1]", c.Matching.Threshold)
	}
	return nil
}

// ServerURL builds the complete proxy server URL, or "" when incomplete.
func (p ProxyConfig) ServerURL() string {
	if p.Host == "" || p.Port == 0 {
		return ""
	}
	scheme := "http"
	if p.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.Host, p.Port)
}

// HasCredentials reports whether username and password are both set.
func (p ProxyConfig) HasCredentials() bool {
	return p.Username != "" && p.Password != ""
}

// NavTimeout returns the navigation timeout as a duration.
func (b BrowserConfig) NavTimeout() time.Duration {
	if b.NavTimeoutSec <= 0 {
		return 45 * time.Second
	}
	return time.Duration(b.NavTimeoutSec) * time.Second
}

// ChallengeWait returns how long the solver may wait for an interstitial.
func (b BrowserConfig) ChallengeWait() time.Duration {
	if b.ChallengeWaitSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(b.ChallengeWaitSec) * time.Second
}

// MinInterval returns the outbound request spacing as a duration.
func (f FetchConfig) MinInterval() time.Duration {
	return time.Duration(f.MinIntervalSec * float64(time.Second))
}
