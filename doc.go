// Package feedsync keeps a video feed in step with a channel registry.
//
// The registry is a spreadsheet exported as CSV with id, name and category
// columns. A sync run reads it, resolves the most recent uploads of every
// channel through the YouTube Data API, flags short-form videos, and writes two
// JSON documents for a static client: a feed of the newest videos and a
// snapshot of the registry.
//
// Overview
//
// The work is split across sub-packages:
//
//   - registry: CSV parsing and category normalization
//   - youtube: Data API client, upload resolution, short-form classification
//   - feed: document model, feed assembly, category merge, document store
//   - pipeline: full and category-only runs, cron scheduling
//   - assets: versioned offline cache of the client's static files
//   - publish: upload of written documents to S3
//   - config: configuration management
//   - http: retrying, rate-limited HTTP client used for the registry and assets
//
// Quick Start
//
// Rebuild the feed once:
//
//	api, err := youtube.NewAPIClient(ctx, youtube.APIConfig{APIKey: key})
//	if err != nil {
//		log.Fatal(err)
//	}
//	s := pipeline.NewSyncer(pipeline.Options{
//		RegistryURL:  registryURL,
//		FeedPath:     "feed.json",
//		ChannelsPath: "channels.json",
//	}, http.New(nil), youtube.NewResolver(api), youtube.NewClassifier(api, 0, zerolog.Nop()))
//	report, err := s.SyncAll(ctx)
//
// Refresh categories without touching the API:
//
//	report, err := s.SyncCategories(ctx)
//
// Configuration
//
// The feedsync command loads settings from multiple sources:
//
//  1. Command line flags (highest priority)
//  2. Environment variables (FEEDSYNC_*, and YOUTUBE_API_KEY for the key)
//  3. Config file (feedsync.yaml, feedsync.yml or feedsync.json in the working
//     directory or ~/.config/feedsync/)
//  4. Default values (lowest priority)
//
// A .env file in the working directory is loaded before anything else.
//
// Error Handling
//
// Checking for sentinel errors:
//
//	if errors.Is(err, feedsync.ErrEmptyRegistry) {
//		fmt.Println("registry has no usable rows")
//	}
//
// Extracting wrapped error details:
//
//	var resolveErr *feedsync.ResolveError
//	if errors.As(err, &resolveErr) {
//		fmt.Printf("channel %s failed: %v\n", resolveErr.Channel, resolveErr.Err)
//	}
package feedsync
