package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"feedsync/internal/storage"
)

// ErrMiss indicates the entry is not in the cache.
var ErrMiss = errors.New("assets: cache miss")

// Entry is a cached response.
type Entry struct {
	URL         string `json:"url"`
	StatusCode  int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Store persists cache versions. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get returns the entry for url in cache, or ErrMiss.
	Get(ctx context.Context, cache, url string) (*Entry, error)
	// Put stores entries in cache, replacing existing ones with the same URL.
	Put(ctx context.Context, cache string, entries ...Entry) error
	// Caches lists the cache versions present in the store.
	Caches(ctx context.Context) ([]string, error)
	// Delete removes a cache version and every entry in it.
	Delete(ctx context.Context, cache string) error
}

// entryKey is the stable storage key of a URL.
func entryKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// DirStore keeps one directory per cache version and one JSON file per entry.
// Put builds the new version of a cache in a staging directory and renames it
// into place, so a failed Put leaves the cache as it was.
type DirStore struct {
	root string

	mu    sync.Mutex
	write func(path string, e Entry) error
}

// NewDirStore creates the root directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create cache dir: %w", err)
	}
	return &DirStore{root: root, write: writeEntry}, nil
}

func writeEntry(path string, e Entry) error {
	return storage.WriteFile(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(e)
	})
}

func (s *DirStore) cacheDir(cache string) string {
	return filepath.Join(s.root, filepath.Base(cache))
}

func (s *DirStore) Get(ctx context.Context, cache, url string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.cacheDir(cache), entryKey(url)+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("assets: read entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("assets: decode entry %s: %w", url, err)
	}
	return &e, nil
}

func (s *DirStore) Put(ctx context.Context, cache string, entries ...Entry) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.cacheDir(cache)
	staging, err := os.MkdirTemp(s.root, ".staging-")
	if err != nil {
		return fmt.Errorf("assets: stage cache %s: %w", cache, err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staging)
		}
	}()

	if err := copyEntries(dir, staging); err != nil {
		return fmt.Errorf("assets: stage cache %s: %w", cache, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(filepath.Join(staging, entryKey(e.URL)+".json"), e); err != nil {
			return fmt.Errorf("assets: write entry %s: %w", e.URL, err)
		}
	}

	return swapDir(staging, dir)
}

// copyEntries copies the entry files of src, if it exists, into dst.
func copyEntries(src, dst string) error {
	items, err := os.ReadDir(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, it.Name()))
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, it.Name()), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// swapDir replaces dir with staging. The previous dir is moved aside first
// and restored if the second rename fails.
func swapDir(staging, dir string) error {
	old := ""
	if _, err := os.Stat(dir); err == nil {
		old = staging + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("assets: replace cache: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			os.Rename(old, dir)
		}
		return fmt.Errorf("assets: replace cache: %w", err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func (s *DirStore) Caches(ctx context.Context) ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("assets: list caches: %w", err)
	}
	var names []string
	for _, it := range items {
		if it.IsDir() && !strings.HasPrefix(it.Name(), ".") {
			names = append(names, it.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirStore) Delete(ctx context.Context, cache string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.cacheDir(cache)); err != nil {
		return fmt.Errorf("assets: delete cache %s: %w", cache, err)
	}
	return nil
}
