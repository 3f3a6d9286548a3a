package http

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines per-host request rates.
type RateLimiterConfig struct {
	// DefaultRPS applies to hosts without an entry in HostRPS. 0 means unlimited.
	DefaultRPS float64
	// HostRPS maps a host name to its requests per second. 0 means unlimited.
	HostRPS map[string]float64
	// Burst is the token bucket size for every host (default 1).
	Burst int
}

// DefaultRateLimiterConfig keeps the Data API and the spreadsheet export polite
// and leaves everything else unlimited.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 0,
		HostRPS: map[string]float64{
			"www.googleapis.com":     10,
			"youtube.googleapis.com": 10,
			"docs.google.com":        2,
		},
		Burst: 5,
	}
}

// RateLimiter holds one token bucket per host, plus a pause window set when
// a host answers with Retry-After.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimiterConfig
	limiters map[string]*rate.Limiter
	paused   map[string]time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.HostRPS == nil {
		cfg.HostRPS = make(map[string]float64)
	}
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
		paused:   make(map[string]time.Time),
	}
}

// Wait blocks until a request to urlStr is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	host := hostOf(urlStr)

	if until := rl.pausedUntil(host); !until.IsZero() {
		if d := time.Until(until); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	limiter := rl.limiter(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Pause stops requests to the host of urlStr for d.
func (rl *RateLimiter) Pause(urlStr string, d time.Duration) {
	if rl == nil || d <= 0 {
		return
	}
	host := hostOf(urlStr)
	until := time.Now().Add(d)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if until.After(rl.paused[host]) {
		rl.paused[host] = until
	}
}

func (rl *RateLimiter) pausedUntil(host string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	until, ok := rl.paused[host]
	if ok && !time.Now().Before(until) {
		delete(rl.paused, host)
		return time.Time{}
	}
	return until
}

// limiter returns the bucket for host, or nil when the host is unlimited.
func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rps, ok := rl.config.HostRPS[host]
	if !ok {
		rps = rl.config.DefaultRPS
	}
	if rps <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rps), rl.config.Burst)
	rl.limiters[host] = l
	return l
}

// hostOf returns the host name of urlStr without port, or "unknown".
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
