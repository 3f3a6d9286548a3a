package youtube

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"feedsync/feed"
	"feedsync/registry"
)

// DefaultMaxPerChannel is the number of recent uploads taken per channel.
const DefaultMaxPerChannel = 5

// ChannelResult is the outcome of resolving one registry channel.
type ChannelResult struct {
	Channel    registry.Channel
	PlaylistID string
	Videos     []feed.Video
	// Err is a *ResolveError when the channel could not be resolved.
	Err error
}

// Resolver turns registry channels into their most recent uploads.
type Resolver struct {
	platform      Platform
	maxPerChannel int
	maxConcurrent int
	log           zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxPerChannel sets how many recent uploads are taken per channel.
func WithMaxPerChannel(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPerChannel = n
		}
	}
}

// WithMaxConcurrent bounds the number of channels resolved at once.
// 0 means one goroutine per channel.
func WithMaxConcurrent(n int) ResolverOption {
	return func(r *Resolver) { r.maxConcurrent = n }
}

// WithLogger sets the logger used for per-channel failures.
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a resolver backed by platform.
func NewResolver(platform Platform, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		platform:      platform,
		maxPerChannel: DefaultMaxPerChannel,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAll resolves every channel concurrently and returns one result per
// input, in input order, once all of them have settled. A failing channel is
// logged and reported in its result; it never cancels the others.
func (r *Resolver) ResolveAll(ctx context.Context, channels []registry.Channel) []ChannelResult {
	results := make([]ChannelResult, len(channels))

	var g errgroup.Group
	if r.maxConcurrent > 0 {
		g.SetLimit(r.maxConcurrent)
	}
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = r.Resolve(ctx, ch)
			return nil
		})
	}
	g.Wait()

	return results
}

// Resolve fetches the recent uploads of one channel.
func (r *Resolver) Resolve(ctx context.Context, ch registry.Channel) ChannelResult {
	result := ChannelResult{Channel: ch}

	playlistID, err := r.uploadsPlaylist(ctx, ch.ID)
	if err != nil {
		result.Err = r.fail(ch, "resolve uploads", err)
		return result
	}
	result.PlaylistID = playlistID

	uploads, err := r.platform.RecentUploads(ctx, playlistID, r.maxPerChannel)
	if err != nil {
		result.Err = r.fail(ch, "list uploads", err)
		return result
	}

	result.Videos = make([]feed.Video, 0, len(uploads))
	for _, u := range uploads {
		result.Videos = append(result.Videos, feed.Video{
			ID:              u.VideoID,
			Title:           u.Title,
			Thumbnail:       u.Thumbnail,
			ChannelTitle:    u.ChannelTitle,
			ChannelID:       u.ChannelID,
			SourceChannelID: ch.ID,
			PublishedAt:     u.PublishedAt,
			Categories:      append([]string{}, ch.Categories...),
		})
	}
	r.log.Debug().Str("channel", ch.ID).Int("videos", len(result.Videos)).Msg("channel resolved")
	return result
}

func (r *Resolver) uploadsPlaylist(ctx context.Context, id string) (string, error) {
	if IsHandle(id) {
		return r.platform.UploadsForHandle(ctx, id)
	}
	if playlistID, ok := UploadsPlaylistID(id); ok {
		return playlistID, nil
	}
	return "", ErrUnsupportedChannelID
}

func (r *Resolver) fail(ch registry.Channel, step string, err error) error {
	ev := r.log.Warn()
	if !errors.Is(err, ErrChannelNotFound) && !errors.Is(err, ErrUnsupportedChannelID) {
		ev = r.log.Error()
	}
	ev.Err(err).Str("channel", ch.ID).Str("name", ch.Name).Msgf("%s failed, channel skipped", step)
	return &ResolveError{Channel: ch.ID, Err: err}
}
