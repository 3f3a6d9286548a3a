// Package pipeline runs sync jobs: a full resync that rebuilds the feed from
// the platform, and a category-only resync that rewrites the categories of a
// persisted feed from the registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feedsync/feed"
	"feedsync/registry"
	"feedsync/youtube"
)

// ErrNoChannelsResolved indicates that every registry channel failed, in which
// case the feed is left as it was.
var ErrNoChannelsResolved = errors.New("pipeline: no channel could be resolved")

// Fetcher retrieves the registry text.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Publisher uploads a written document somewhere clients can read it.
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

// Options locates the inputs and outputs of a run.
type Options struct {
	RegistryURL      string
	FeedPath         string
	ChannelsPath     string
	FallbackCategory string
	// FeedLimit caps the number of videos in the feed. 0 means feed.MaxVideos.
	FeedLimit int
}

// Report summarizes one run.
type Report struct {
	RunID            string          `json:"run_id"`
	Mode             string          `json:"mode"`
	ChannelsParsed   int             `json:"channels_parsed"`
	ChannelsResolved int             `json:"channels_resolved"`
	ChannelsFailed   int             `json:"channels_failed"`
	VideosWritten    int             `json:"videos_written"`
	Shorts           int             `json:"shorts"`
	Merge            feed.MergeStats `json:"merge"`
	// FeedFound is false when there was no persisted feed to merge into.
	FeedFound bool          `json:"feed_found"`
	Duration  time.Duration `json:"duration_ns"`
}

// Run modes reported in Report.Mode.
const (
	ModeFull       = "full"
	ModeCategories = "categories"
)

// Syncer wires the registry, the platform and the document store together.
type Syncer struct {
	opts       Options
	fetcher    Fetcher
	resolver   *youtube.Resolver
	classifier *youtube.Classifier
	store      *feed.Store
	publisher  Publisher
	log        zerolog.Logger
	now        func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithPublisher publishes every document after it is written.
func WithPublisher(p Publisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithStore replaces the default document store.
func WithStore(store *feed.Store) Option {
	return func(s *Syncer) { s.store = store }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// WithClock overrides the time source used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// NewSyncer creates a Syncer. resolver and classifier may be nil when only
// SyncCategories is used.
func NewSyncer(opts Options, fetcher Fetcher, resolver *youtube.Resolver, classifier *youtube.Classifier, options ...Option) *Syncer {
	s := &Syncer{
		opts:       opts,
		fetcher:    fetcher,
		resolver:   resolver,
		classifier: classifier,
		store:      feed.NewStore(),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// SyncAll rebuilds the feed from the most recent uploads of every registry
// channel. Channel metadata of the previous feed is kept, with categories
// refreshed from the registry.
func (s *Syncer) SyncAll(ctx context.Context) (*Report, error) {
	if s.resolver == nil || s.classifier == nil {
		return nil, errors.New("pipeline: full sync needs a resolver and a classifier")
	}
	report, log := s.start(ModeFull)
	defer s.finish(report, log, s.now())

	channels, err := s.loadRegistry(ctx, report, log)
	if err != nil {
		return report, err
	}

	previous, err := s.loadFeed(report, log)
	if err != nil {
		return report, err
	}
	if previous == nil {
		previous = feed.NewDocument()
	}

	results := s.resolver.ResolveAll(ctx, channels)
	lists := make([][]feed.Video, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			report.ChannelsFailed++
			continue
		}
		report.ChannelsResolved++
		lists = append(lists, res.Videos)
	}
	if report.ChannelsResolved == 0 {
		log.Error().Int("channels", len(channels)).Msg("every channel failed, feed left untouched")
		return report, ErrNoChannelsResolved
	}

	videos := feed.Assemble(lists, s.opts.FeedLimit)
	report.Shorts = s.classifier.Classify(ctx, videos)

	doc, stats := feed.Merge(previous, registry.CategoryMap(channels))
	report.Merge = stats
	for _, res := range results {
		if res.Err == nil {
			upsertChannel(doc, res)
		}
	}
	doc.Videos = videos
	report.VideosWritten = len(videos)

	if err := s.store.SaveFeed(s.opts.FeedPath, doc); err != nil {
		return report, fmt.Errorf("write feed: %w", err)
	}
	log.Info().Str("path", s.opts.FeedPath).Int("videos", len(videos)).Int("shorts", report.Shorts).Msg("feed written")

	return report, s.publish(ctx, log, s.opts.ChannelsPath, s.opts.FeedPath)
}

// SyncCategories rewrites the categories of the persisted feed from the
// registry without calling the platform. A missing feed is not an error:
// the registry snapshot is still written and the report says FeedFound false.
func (s *Syncer) SyncCategories(ctx context.Context) (*Report, error) {
	report, log := s.start(ModeCategories)
	defer s.finish(report, log, s.now())

	channels, err := s.loadRegistry(ctx, report, log)
	if err != nil {
		return report, err
	}

	doc, err := s.loadFeed(report, log)
	if err != nil {
		return report, err
	}
	if doc == nil {
		return report, s.publish(ctx, log, s.opts.ChannelsPath)
	}

	merged, stats := feed.Merge(doc, registry.CategoryMap(channels))
	report.Merge = stats
	report.VideosWritten = len(merged.Videos)

	if err := s.store.SaveFeed(s.opts.FeedPath, merged); err != nil {
		return report, fmt.Errorf("write feed: %w", err)
	}
	log.Info().
		Int("channels_updated", stats.ChannelsUpdated).
		Int("videos_updated", stats.VideosUpdated).
		Msg("feed categories merged")

	return report, s.publish(ctx, log, s.opts.ChannelsPath, s.opts.FeedPath)
}

func (s *Syncer) start(mode string) (*Report, zerolog.Logger) {
	report := &Report{RunID: uuid.NewString(), Mode: mode}
	log := s.log.With().Str("run_id", report.RunID).Str("mode", mode).Logger()
	log.Info().Msg("sync started")
	return report, log
}

func (s *Syncer) finish(report *Report, log zerolog.Logger, started time.Time) {
	report.Duration = s.now().Sub(started)
	log.Info().
		Int("channels_parsed", report.ChannelsParsed).
		Int("channels_resolved", report.ChannelsResolved).
		Int("channels_failed", report.ChannelsFailed).
		Int("videos", report.VideosWritten).
		Bool("feed_found", report.FeedFound).
		Dur("duration", report.Duration).
		Msg("sync finished")
}

// loadRegistry fetches and parses the registry and writes the channels
// document. An empty registry aborts the run.
func (s *Syncer) loadRegistry(ctx context.Context, report *Report, log zerolog.Logger) ([]registry.Channel, error) {
	text, err := s.fetcher.FetchText(ctx, s.opts.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}

	channels, err := registry.Parser{Fallback: s.opts.FallbackCategory}.ParseStrict(text)
	if err != nil {
		return nil, err
	}
	channels = registry.Dedupe(channels)
	report.ChannelsParsed = len(channels)
	log.Info().Int("channels", len(channels)).Msg("registry parsed")

	entries := make([]feed.ChannelEntry, 0, len(channels))
	for _, ch := range channels {
		entries = append(entries, feed.ChannelEntry{
			ID:         ch.ID,
			Name:       ch.Name,
			Categories: ch.Categories,
			Category:   ch.MainCategory,
		})
	}
	if err := s.store.SaveChannels(s.opts.ChannelsPath, feed.NewChannelsDocument(entries, s.now())); err != nil {
		return nil, fmt.Errorf("write channels: %w", err)
	}
	log.Info().Str("path", s.opts.ChannelsPath).Msg("channels document written")
	return channels, nil
}

// loadFeed returns the persisted feed, or nil when there is none.
func (s *Syncer) loadFeed(report *Report, log zerolog.Logger) (*feed.Document, error) {
	doc, err := s.store.LoadFeed(s.opts.FeedPath)
	if errors.Is(err, feed.ErrFeedNotFound) {
		log.Warn().Str("path", s.opts.FeedPath).Msg("no persisted feed, merge skipped")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	report.FeedFound = true
	return doc, nil
}

func (s *Syncer) publish(ctx context.Context, log zerolog.Logger, paths ...string) error {
	if s.publisher == nil {
		return nil
	}
	var errs []error
	for _, path := range paths {
		if err := s.publisher.Publish(ctx, path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("publish failed")
			errs = append(errs, err)
			continue
		}
		log.Info().Str("document", filepath.Base(path)).Msg("document published")
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// upsertChannel records the metadata of a resolved channel, keeping unknown
// keys of an existing entry.
func upsertChannel(doc *feed.Document, res youtube.ChannelResult) {
	entry := doc.Channels[res.Channel.ID]
	switch {
	case res.Channel.Name != "":
		entry.Name = res.Channel.Name
	case entry.Name == "" && len(res.Videos) > 0:
		entry.Name = res.Videos[0].ChannelTitle
	}
	entry.UploadsPlaylistID = res.PlaylistID
	entry.Categories = append([]string{}, res.Channel.Categories...)
	doc.Channels[res.Channel.ID] = entry
}
