package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"feedsync/internal/storage"
)

// ErrFeedNotFound indicates there is no persisted feed at the given path.
var ErrFeedNotFound = errors.New("feed: document not found")

// StoreError wraps a failure to read or write a document.
type StoreError struct {
	// Op is "load" or "save".
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("feed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store reads and writes documents on the local filesystem. Writes replace the
// target atomically while holding an advisory lock on it.
type Store struct {
	LockTimeout time.Duration
}

// NewStore returns a store with the default lock timeout.
func NewStore() *Store {
	return &Store{LockTimeout: storage.DefaultLockTimeout}
}

// LoadFeed reads the feed at path. A missing file yields ErrFeedNotFound.
func (s *Store) LoadFeed(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &StoreError{Op: "load", Path: path, Err: ErrFeedNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: path, Err: err}
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &StoreError{Op: "load", Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return doc, nil
}

// SaveFeed writes doc to path.
func (s *Store) SaveFeed(path string, doc *Document) error {
	return s.save(path, doc)
}

// SaveChannels writes the registry snapshot to path.
func (s *Store) SaveChannels(path string, doc *ChannelsDocument) error {
	return s.save(path, doc)
}

func (s *Store) save(path string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}

	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = storage.DefaultLockTimeout
	}
	err = storage.WithLock(path, timeout, func() error {
		return storage.WriteFile(path, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
	})
	if err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// Encode renders v as two-space indented JSON.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewChannelsDocument builds the registry snapshot stamped with now.
func NewChannelsDocument(entries []ChannelEntry, now time.Time) *ChannelsDocument {
	if entries == nil {
		entries = []ChannelEntry{}
	}
	return &ChannelsDocument{
		UpdatedAt: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Channels:  entries,
	}
}
