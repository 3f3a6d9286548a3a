// Package assets keeps a versioned offline copy of the client's static files.
// A cache version is filled in one step by Install, older versions are
// dropped by Activate, and Fetch serves from the cache before the network.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	feedhttp "feedsync/http"
)

// ErrNotCacheable is returned by Fetch for URLs that are not http or https.
var ErrNotCacheable = errors.New("assets: url not cacheable")

// DefaultCacheName is the cache version used when none is configured.
const DefaultCacheName = "mytube-v2"

// DefaultPaths are the files of the client application, relative to the base
// URL.
var DefaultPaths = []string{
	"./",
	"./index.html",
	"./css/styles.css",
	"./js/app.js",
	"./js/config.js",
	"./js/data.js",
	"./js/youtube.js",
	"./manifest.json",
}

// Getter performs GET requests. *feedhttp.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*feedhttp.Response, error)
}

// Config describes the cache.
type Config struct {
	// Name is the current cache version.
	Name string
	// BaseURL is the origin and directory the asset paths are relative to.
	BaseURL string
	Paths   []string
}

// Cache is a read-through cache of one version of the assets.
type Cache struct {
	name   string
	base   *url.URL
	paths  []string
	store  Store
	client Getter
	log    zerolog.Logger
}

// New creates a cache. It fails when BaseURL is not an absolute http(s) URL.
func New(cfg Config, store Store, client Getter, log zerolog.Logger) (*Cache, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !isHTTP(base) || base.Host == "" {
		return nil, fmt.Errorf("assets: invalid base url %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	name := cfg.Name
	if name == "" {
		name = DefaultCacheName
	}
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Cache{
		name:   name,
		base:   base,
		paths:  paths,
		store:  store,
		client: client,
		log:    log,
	}, nil
}

// Name returns the current cache version.
func (c *Cache) Name() string { return c.name }

// Install downloads every asset and stores them under the current version.
// Nothing is stored unless every download succeeds.
func (c *Cache) Install(ctx context.Context) error {
	entries := make([]Entry, 0, len(c.paths))
	for _, p := range c.paths {
		u, err := c.resolve(p)
		if err != nil {
			return err
		}
		resp, err := c.client.Get(ctx, u)
		if err != nil {
			return fmt.Errorf("assets: install %s: %w", u, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("assets: install %s: status %d", u, resp.StatusCode)
		}
		entries = append(entries, entryFrom(u, resp))
	}

	if err := c.store.Put(ctx, c.name, entries...); err != nil {
		return err
	}
	c.log.Info().Str("cache", c.name).Int("assets", len(entries)).Msg("assets installed")
	return nil
}

// Activate deletes every cache version other than the current one and returns
// the names it removed.
func (c *Cache) Activate(ctx context.Context) ([]string, error) {
	names, err := c.store.Caches(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range names {
		if name == c.name {
			continue
		}
		if err := c.store.Delete(ctx, name); err != nil {
			return removed, err
		}
		c.log.Info().Str("cache", name).Msg("stale cache removed")
		removed = append(removed, name)
	}
	return removed, nil
}

// Fetch returns the cached entry for rawURL, or fetches it. Only 200
// responses served from the base origin are stored. A non-2xx response is
// returned as an entry with its status code.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (*Entry, error) {
	u, err := c.base.Parse(rawURL)
	if err != nil || !isHTTP(u) {
		return nil, fmt.Errorf("%w: %s", ErrNotCacheable, rawURL)
	}
	key := u.String()

	entry, err := c.store.Get(ctx, c.name, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrMiss) {
		c.log.Warn().Err(err).Str("url", key).Msg("cache read failed, using network")
	}

	resp, err := c.client.Get(ctx, key)
	if err != nil {
		var httpErr *feedhttp.HTTPError
		if errors.As(err, &httpErr) {
			return &Entry{URL: key, StatusCode: httpErr.StatusCode, Body: httpErr.Body}, nil
		}
		return nil, err
	}

	fetched := entryFrom(key, resp)
	if c.cacheable(resp) {
		if err := c.store.Put(ctx, c.name, fetched); err != nil {
			c.log.Warn().Err(err).Str("url", key).Msg("cache write failed")
		}
	}
	return &fetched, nil
}

// cacheable reports whether resp is a plain 200 from the base origin.
func (c *Cache) cacheable(resp *feedhttp.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	final, err := url.Parse(resp.URL)
	if err != nil {
		return false
	}
	return final.Scheme == c.base.Scheme && final.Host == c.base.Host
}

func (c *Cache) resolve(p string) (string, error) {
	u, err := c.base.Parse(p)
	if err != nil {
		return "", fmt.Errorf("assets: invalid path %q: %w", p, err)
	}
	return u.String(), nil
}

func entryFrom(u string, resp *feedhttp.Response) Entry {
	return Entry{
		URL:         u,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}
}

func isHTTP(u *url.URL) bool {
	return u.Scheme == "http" || u.Scheme == "https"
}
