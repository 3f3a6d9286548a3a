package youtube

import (
	"context"
	"fmt"
	"sync"
)

// fakePlatform is an in-memory Platform that records calls.
type fakePlatform struct {
	mu        sync.Mutex
	handles   map[string]string
	uploads   map[string][]Upload
	durations map[string]string
	failList  map[string]error
	failDur   func(ids []string) error

	handleCalls   []string
	playlistCalls []string
	durationCalls [][]string
}

func (f *fakePlatform) UploadsForHandle(ctx context.Context, handle string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handleCalls = append(f.handleCalls, handle)
	id, ok := f.handles[handle]
	if !ok {
		return "", ErrChannelNotFound
	}
	return id, nil
}

func (f *fakePlatform) RecentUploads(ctx context.Context, playlistID string, n int) ([]Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistCalls = append(f.playlistCalls, playlistID)
	if err := f.failList[playlistID]; err != nil {
		return nil, err
	}
	items := f.uploads[playlistID]
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func (f *fakePlatform) Durations(ctx context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durationCalls = append(f.durationCalls, append([]string(nil), ids...))
	if len(ids) > MaxIDsPerRequest {
		return nil, fmt.Errorf("too many ids: %d", len(ids))
	}
	if f.failDur != nil {
		if err := f.failDur(ids); err != nil {
			return nil, err
		}
	}
	out := make(map[string]string)
	for _, id := range ids {
		if d, ok := f.durations[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}
