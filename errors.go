package feedsync

import (
	"feedsync/assets"
	"feedsync/feed"
	feedhttp "feedsync/http"
	"feedsync/internal/retry"
	"feedsync/internal/storage"
	"feedsync/pipeline"
	"feedsync/registry"
	"feedsync/youtube"
)

// Type aliases for convenient error handling.
type (
	// ResolveError wraps a failure to resolve one registry channel.
	ResolveError = youtube.ResolveError
	// StoreError wraps a failure to read or write a document.
	StoreError = feed.StoreError
	// HTTPError is a non-2xx response from the registry or asset host.
	HTTPError = feedhttp.HTTPError
	// RateLimitError is a throttling response (429 or 503).
	RateLimitError = feedhttp.RateLimitError
	// ExhaustedError is returned after every retry failed.
	ExhaustedError = retry.ExhaustedError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrEmptyRegistry indicates the registry produced no usable channels.
	ErrEmptyRegistry = registry.ErrEmptyRegistry
	// ErrChannelNotFound indicates a handle matched no channel.
	ErrChannelNotFound = youtube.ErrChannelNotFound
	// ErrUnsupportedChannelID indicates a registry id that is neither a
	// handle nor a canonical channel id.
	ErrUnsupportedChannelID = youtube.ErrUnsupportedChannelID
	// ErrMissingAPIKey indicates no API key was configured.
	ErrMissingAPIKey = youtube.ErrMissingAPIKey
	// ErrNoChannelsResolved indicates every channel failed during a full run.
	ErrNoChannelsResolved = pipeline.ErrNoChannelsResolved
	// ErrFeedNotFound indicates there is no persisted feed.
	ErrFeedNotFound = feed.ErrFeedNotFound
	// ErrCircuitOpen indicates a host was skipped because it kept failing.
	ErrCircuitOpen = feedhttp.ErrCircuitOpen
	// ErrNotCacheable indicates a URL the asset cache cannot serve.
	ErrNotCacheable = assets.ErrNotCacheable
	// ErrLockTimeout indicates a timeout acquiring a document lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
// It returns false for context errors and errors marked permanent.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
