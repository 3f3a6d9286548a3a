// Package config manages application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"feedsync/internal/retry"
)

// Config holds all settings of a sync run, the scheduler and the asset cache.
type Config struct {
	// RegistryURL is the CSV export of the channel registry.
	RegistryURL string `json:"registry_url" yaml:"registry_url"`
	// APIKey authenticates Data API calls.
	APIKey string `json:"api_key" yaml:"api_key"`

	// FeedPath is where the feed document is read from and written to.
	FeedPath string `json:"feed_path" yaml:"feed_path"`
	// ChannelsPath is where the registry snapshot is written.
	ChannelsPath string `json:"channels_path" yaml:"channels_path"`
	// FallbackCategory is the main category of channels without categories.
	FallbackCategory string `json:"fallback_category" yaml:"fallback_category"`

	// MaxPerChannel is the number of recent uploads taken per channel.
	MaxPerChannel int `json:"max_per_channel" yaml:"max_per_channel"`
	// FeedLimit caps the number of videos in the feed.
	FeedLimit int `json:"feed_limit" yaml:"feed_limit"`
	// ShortMaxSeconds is the longest duration classified as a short.
	ShortMaxSeconds int `json:"short_max_seconds" yaml:"short_max_seconds"`
	// MaxConcurrent bounds concurrent channel lookups (0 = unbounded).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// RequestTimeout bounds every registry fetch and API call.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	// MaxRetries is the number of retries for transient failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// LogLevel is a zerolog level name.
	LogLevel string `json:"log_level" yaml:"log_level"`
	// Schedule is the cron spec used by the schedule command.
	Schedule string `json:"schedule" yaml:"schedule"`

	// AssetBaseURL is the URL the client application is served from.
	AssetBaseURL string `json:"asset_base_url" yaml:"asset_base_url"`
	// AssetPaths are the files cached for offline use, relative to AssetBaseURL.
	AssetPaths []string `json:"asset_paths" yaml:"asset_paths"`
	// CacheName is the current asset cache version.
	CacheName string `json:"cache_name" yaml:"cache_name"`
	// AssetStore selects the cache backend: "dir" or "redis".
	AssetStore string `json:"asset_store" yaml:"asset_store"`
	// AssetDir is the root of the directory store.
	AssetDir string `json:"asset_dir" yaml:"asset_dir"`
	// RedisURL locates the redis store.
	RedisURL string `json:"redis_url" yaml:"redis_url"`

	// S3Bucket enables publishing when set.
	S3Bucket string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix string `json:"s3_prefix" yaml:"s3_prefix"`
	S3Region string `json:"s3_region" yaml:"s3_region"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		FeedPath:         "feed.json",
		ChannelsPath:     "channels.json",
		FallbackCategory: "Other",
		MaxPerChannel:    5,
		FeedLimit:        100,
		ShortMaxSeconds:  60,
		MaxConcurrent:    8,
		RequestTimeout:   30 * time.Second,
		MaxRetries:       2,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		LogLevel:         "info",
		Schedule:         "@every 1h",
		CacheName:        "mytube-v2",
		AssetStore:       "dir",
		AssetDir:         ".feedsync-cache",
	}
}

// Load builds the configuration from defaults, then the config file, then
// environment variables. path names an explicit config file; when empty the
// default locations are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else if err := cfg.loadFromFile(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists the config files tried by Load, in order.
func SearchPaths() []string {
	names := []string{"feedsync.yaml", "feedsync.yml", "feedsync.json"}
	var paths []string
	paths = append(paths, names...)
	if home, err := os.UserHomeDir(); err == nil {
		for _, n := range names {
			paths = append(paths, filepath.Join(home, ".config", "feedsync", n))
		}
	}
	return paths
}

// loadFromFile loads the first config file found in SearchPaths.
func (c *Config) loadFromFile() error {
	for _, path := range SearchPaths() {
		err := c.loadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return err
	}
	return os.ErrNotExist
}

// loadFile decodes YAML or JSON depending on the extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides config with FEEDSYNC_* variables and YOUTUBE_API_KEY.
func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"FEEDSYNC_REGISTRY_URL":      &c.RegistryURL,
		"FEEDSYNC_API_KEY":           &c.APIKey,
		"FEEDSYNC_FEED_PATH":         &c.FeedPath,
		"FEEDSYNC_CHANNELS_PATH":     &c.ChannelsPath,
		"FEEDSYNC_FALLBACK_CATEGORY": &c.FallbackCategory,
		"FEEDSYNC_LOG_LEVEL":         &c.LogLevel,
		"FEEDSYNC_SCHEDULE":          &c.Schedule,
		"FEEDSYNC_ASSET_BASE_URL":    &c.AssetBaseURL,
		"FEEDSYNC_CACHE_NAME":        &c.CacheName,
		"FEEDSYNC_ASSET_STORE":       &c.AssetStore,
		"FEEDSYNC_ASSET_DIR":         &c.AssetDir,
		"FEEDSYNC_REDIS_URL":         &c.RedisURL,
		"FEEDSYNC_S3_BUCKET":         &c.S3Bucket,
		"FEEDSYNC_S3_PREFIX":         &c.S3Prefix,
		"FEEDSYNC_S3_REGION":         &c.S3Region,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}
	if v := os.Getenv("FEEDSYNC_ASSET_PATHS"); v != "" {
		c.AssetPaths = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.AssetPaths = append(c.AssetPaths, p)
			}
		}
	}

	ints := map[string]*int{
		"FEEDSYNC_MAX_PER_CHANNEL":   &c.MaxPerChannel,
		"FEEDSYNC_FEED_LIMIT":        &c.FeedLimit,
		"FEEDSYNC_SHORT_MAX_SECONDS": &c.ShortMaxSeconds,
		"FEEDSYNC_MAX_CONCURRENT":    &c.MaxConcurrent,
		"FEEDSYNC_MAX_RETRIES":       &c.MaxRetries,
	}
	for name, dst := range ints {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"FEEDSYNC_REQUEST_TIMEOUT": &c.RequestTimeout,
		"FEEDSYNC_INITIAL_BACKOFF": &c.InitialBackoff,
		"FEEDSYNC_MAX_BACKOFF":     &c.MaxBackoff,
	}
	for name, dst := range durations {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.FeedPath == "" {
		return fmt.Errorf("feed_path must be set")
	}
	if c.ChannelsPath == "" {
		return fmt.Errorf("channels_path must be set")
	}
	if c.MaxPerChannel <= 0 {
		return fmt.Errorf("max_per_channel must be positive")
	}
	if c.FeedLimit <= 0 {
		return fmt.Errorf("feed_limit must be positive")
	}
	if c.ShortMaxSeconds <= 0 {
		return fmt.Errorf("short_max_seconds must be positive")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must be non-negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	switch c.AssetStore {
	case "dir", "redis":
	default:
		return fmt.Errorf("asset_store must be \"dir\" or \"redis\", got %q", c.AssetStore)
	}
	return nil
}

// RetryConfig returns the retry policy for registry fetches and API calls.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialBackoff = c.InitialBackoff
	cfg.MaxBackoff = c.MaxBackoff
	return cfg
}
