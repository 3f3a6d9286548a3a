// Package http provides the transport used to fetch the channel registry and
// offline assets: retries, per-host rate limiting and per-host circuit breakers.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"feedsync/internal/retry"

	"github.com/sony/gobreaker"
)

// Client wraps an HTTP client with retry logic, rate limiting and circuit breaking.
type Client struct {
	base     *http.Client
	config   *Config
	limiter  *RateLimiter
	breakers *breakerSet
}

// Config holds HTTP client configuration.
type Config struct {
	// Timeout bounds a single request attempt, redirects included.
	Timeout time.Duration
	// Retry controls how transient failures are retried.
	Retry retry.Config
	// UserAgent is sent with every request.
	UserAgent string
	// MaxRedirects caps redirect hops (default 10).
	MaxRedirects int
	// RateLimiter configures per-host token buckets.
	RateLimiter RateLimiterConfig
	// Breaker configures the per-host circuit breakers.
	Breaker BreakerConfig
	// Transport configures connection pooling.
	Transport TransportConfig
}

// TransportConfig configures the HTTP transport (connection pooling).
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
}

// BreakerConfig configures the per-host circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that opens a circuit.
	FailureThreshold uint32
	// OpenTimeout is how long an open circuit rejects requests before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		Retry:        retry.DefaultConfig(),
		UserAgent:    "feedsync/1.0",
		MaxRedirects: 10,
		RateLimiter:  DefaultRateLimiterConfig(),
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
		Transport: DefaultTransportConfig(),
	}
}

// DefaultTransportConfig returns sensible defaults for HTTP transport configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Transport.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Transport.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.Transport.ForceAttemptHTTP2,
	}

	maxRedirects := cfg.MaxRedirects
	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Client{
		base:     base,
		config:   cfg,
		limiter:  NewRateLimiter(cfg.RateLimiter),
		breakers: newBreakerSet(cfg.Breaker),
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL string
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// FetchText retrieves url as text, following redirects.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Do performs a bodiless request. Transient failures are retried; a host that
// keeps failing trips its breaker and further calls fail with ErrCircuitOpen.
func (c *Client) Do(ctx context.Context, method, urlStr string, headers map[string]string) (*Response, error) {
	host := hostOf(urlStr)
	var out *Response

	_, err := c.breakers.get(host).Execute(func() (interface{}, error) {
		return nil, retry.Do(ctx, c.config.Retry, isRetryable, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx, urlStr); err != nil {
				return err
			}
			resp, err := c.once(ctx, method, urlStr, headers)
			if err != nil {
				var rl *RateLimitError
				if errors.As(err, &rl) {
					c.limiter.Pause(urlStr, rl.RetryAfter)
				}
				return err
			}
			out = resp
			return nil
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, host)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) once(ctx context.Context, method, urlStr string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &RateLimitError{
			URL:        urlStr,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: urlStr, StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        resp.Request.URL.String(),
	}, nil
}

func isRetryable(err error) bool {
	return retry.IsRetryable(err) && IsTransient(err)
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date; 0 when absent.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// BreakerState reports the breaker state for host ("closed", "open", "half-open").
func (c *Client) BreakerState(host string) string {
	return c.breakers.get(host).State().String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}

type breakerSet struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerSet(cfg BreakerConfig) *breakerSet {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	return &breakerSet{cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *breakerSet) get(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[host]; ok {
		return cb
	}
	threshold := s.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: s.cfg.HalfOpenRequests,
		Timeout:     s.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors and cancellations say nothing about host health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return !IsTransient(err)
		},
	})
	s.breakers[host] = cb
	return cb
}
