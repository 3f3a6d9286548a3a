package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"feedsync/assets"
	"feedsync/config"
	feedhttp "feedsync/http"
	"feedsync/internal/logging"
	"feedsync/pipeline"
	"feedsync/publish"
	"feedsync/youtube"
)

func main() {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:]))
}

// run executes one command and returns the process exit status. Commands
// return instead of exiting so their deferred cleanup always runs.
func run(argv []string) int {
	if len(argv) < 1 {
		printUsage()
		return 1
	}

	command := argv[0]
	args := argv[1:]

	switch command {
	case "sync":
		return cmdSync(args)
	case "categories":
		return cmdCategories(args)
	case "schedule":
		return cmdSchedule(args)
	case "assets":
		return cmdAssets(args)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `feedsync - channel registry to video feed synchronizer

Usage:
  feedsync sync [flags]                    Rebuild the feed from every registry channel
  feedsync categories [flags]              Refresh feed categories from the registry only
  feedsync schedule [flags]                Run sync on a cron schedule until interrupted
  feedsync assets [flags] install          Download the client assets into the current cache
  feedsync assets [flags] activate         Delete every other cache version
  feedsync assets [flags] fetch <url>      Read an asset through the cache
  feedsync help                            Show this help message

Configuration is read from feedsync.yaml, feedsync.yml or feedsync.json in the
working directory or ~/.config/feedsync/, then from FEEDSYNC_* variables
(YOUTUBE_API_KEY for the API key). A .env file is loaded first.

For help on specific command: feedsync <command> -h
`)
}

// commonFlags are shared by every command and override the configuration.
type commonFlags struct {
	configPath  *string
	registryURL *string
	feedPath    *string
	channels    *string
	logLevel    *string
	asJSON      *bool
}

func newFlagSet(name, usage string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{
		configPath:  fs.String("config", "", "Config file (default: search feedsync.yaml/.yml/.json)"),
		registryURL: fs.String("registry-url", "", "Registry CSV URL"),
		feedPath:    fs.String("feed", "", "Feed document path"),
		channels:    fs.String("channels", "", "Channels document path"),
		logLevel:    fs.String("log-level", "", "Log level: debug, info, warn, error"),
		asJSON:      fs.Bool("json", false, "Print the run report as JSON"),
	}
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: feedsync %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs, cf
}

// parseFlags parses args and reports the exit status to use when parsing
// did not succeed: 0 for -h, 2 for bad flags.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0, false
	}
	if err != nil {
		return 2, false
	}
	return 0, true
}

// load reads the configuration, applies flag overrides and sets up logging.
func (cf *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(*cf.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return nil, err
	}
	if *cf.registryURL != "" {
		cfg.RegistryURL = *cf.registryURL
	}
	if *cf.feedPath != "" {
		cfg.FeedPath = *cf.feedPath
	}
	if *cf.channels != "" {
		cfg.ChannelsPath = *cf.channels
	}
	if *cf.logLevel != "" {
		cfg.LogLevel = *cf.logLevel
	}
	logging.Init(cfg.LogLevel, os.Stderr)
	return cfg, nil
}

// fail logs err and returns the failure exit status.
func fail(log zerolog.Logger, err error, msg string) int {
	log.Error().Err(err).Msg(msg)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	return 1
}

func newHTTPClient(cfg *config.Config) *feedhttp.Client {
	hc := feedhttp.DefaultConfig()
	hc.Timeout = cfg.RequestTimeout
	hc.Retry = cfg.RetryConfig()
	return feedhttp.New(hc)
}

// newSyncer wires the pipeline. withPlatform is false for the category-only
// mode, which needs neither an API key nor a platform client.
func newSyncer(ctx context.Context, cfg *config.Config, withPlatform bool) (*pipeline.Syncer, func(), error) {
	log := logging.For("pipeline")
	if cfg.RegistryURL == "" {
		return nil, nil, errors.New("invalid configuration: registry_url is not set")
	}

	client := newHTTPClient(cfg)
	opts := []pipeline.Option{pipeline.WithLogger(log)}

	if cfg.S3Bucket != "" {
		pub, err := publish.NewS3Publisher(ctx, publish.S3Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Region: cfg.S3Region,
		})
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("create publisher: %w", err)
		}
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	var resolver *youtube.Resolver
	var classifier *youtube.Classifier
	if withPlatform {
		api, err := youtube.NewAPIClient(ctx, youtube.APIConfig{
			APIKey:  cfg.APIKey,
			Timeout: cfg.RequestTimeout,
			Retry:   cfg.RetryConfig(),
			Limiter: feedhttp.NewRateLimiter(feedhttp.DefaultRateLimiterConfig()),
		})
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("create youtube client: %w", err)
		}
		ytLog := logging.For("youtube")
		resolver = youtube.NewResolver(api,
			youtube.WithMaxPerChannel(cfg.MaxPerChannel),
			youtube.WithMaxConcurrent(cfg.MaxConcurrent),
			youtube.WithLogger(ytLog),
		)
		classifier = youtube.NewClassifier(api, cfg.ShortMaxSeconds, ytLog)
	}

	s := pipeline.NewSyncer(pipeline.Options{
		RegistryURL:      cfg.RegistryURL,
		FeedPath:         cfg.FeedPath,
		ChannelsPath:     cfg.ChannelsPath,
		FallbackCategory: cfg.FallbackCategory,
		FeedLimit:        cfg.FeedLimit,
	}, client, resolver, classifier, opts...)
	return s, func() { client.Close() }, nil
}

func printReport(report *pipeline.Report, asJSON bool) {
	if report == nil {
		return
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Run:\t%s (%s)\n", report.RunID, report.Mode)
	fmt.Fprintf(w, "Channels:\t%d parsed, %d resolved, %d failed\n", report.ChannelsParsed, report.ChannelsResolved, report.ChannelsFailed)
	fmt.Fprintf(w, "Videos:\t%d written, %d shorts\n", report.VideosWritten, report.Shorts)
	fmt.Fprintf(w, "Merge:\t%d channels, %d videos updated\n", report.Merge.ChannelsUpdated, report.Merge.VideosUpdated)
	fmt.Fprintf(w, "Feed found:\t%v\n", report.FeedFound)
	fmt.Fprintf(w, "Duration:\t%s\n", report.Duration)
	w.Flush()
}

func cmdSync(args []string) int {
	fs, cf := newFlagSet("sync", "sync [flags]")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, err := cf.load()
	if err != nil {
		return 1
	}
	log := logging.For("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeFn, err := newSyncer(ctx, cfg, true)
	if err != nil {
		return fail(log, err, "setup failed")
	}
	defer closeFn()

	report, err := s.SyncAll(ctx)
	printReport(report, *cf.asJSON)
	if err != nil {
		return fail(log, err, "sync failed")
	}
	return 0
}

func cmdCategories(args []string) int {
	fs, cf := newFlagSet("categories", "categories [flags]")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, err := cf.load()
	if err != nil {
		return 1
	}
	log := logging.For("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeFn, err := newSyncer(ctx, cfg, false)
	if err != nil {
		return fail(log, err, "setup failed")
	}
	defer closeFn()

	report, err := s.SyncCategories(ctx)
	printReport(report, *cf.asJSON)
	if err != nil {
		return fail(log, err, "category sync failed")
	}
	if !report.FeedFound {
		fmt.Fprintf(os.Stderr, "No feed at %s; only %s was written.\n", cfg.FeedPath, cfg.ChannelsPath)
	}
	return 0
}

func cmdSchedule(args []string) int {
	fs, cf := newFlagSet("schedule", "schedule [flags]")
	spec := fs.String("every", "", "Cron spec overriding the configured schedule (e.g. \"@every 30m\")")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, err := cf.load()
	if err != nil {
		return 1
	}
	if *spec != "" {
		cfg.Schedule = *spec
	}
	log := logging.For("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeFn, err := newSyncer(ctx, cfg, true)
	if err != nil {
		return fail(log, err, "setup failed")
	}
	defer closeFn()

	fmt.Fprintf(os.Stderr, "Syncing on schedule %q, interrupt to stop\n", cfg.Schedule)
	if err := s.Schedule(ctx, cfg.Schedule); err != nil {
		return fail(log, err, "schedule failed")
	}
	return 0
}

func cmdAssets(args []string) int {
	fs, cf := newFlagSet("assets", "assets [flags] install|activate|fetch <url>")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	cfg, err := cf.load()
	if err != nil {
		return 1
	}
	log := logging.For("assets")

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing assets subcommand\n")
		fs.Usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newAssetStore(ctx, cfg)
	if err != nil {
		return fail(log, err, "open asset store")
	}
	defer closeStore()

	client := newHTTPClient(cfg)
	defer client.Close()

	cache, err := assets.New(assets.Config{
		Name:    cfg.CacheName,
		BaseURL: cfg.AssetBaseURL,
		Paths:   cfg.AssetPaths,
	}, store, client, log)
	if err != nil {
		return fail(log, err, "invalid asset configuration")
	}

	switch argv[0] {
	case "install":
		if err := cache.Install(ctx); err != nil {
			return fail(log, err, "install failed")
		}
		fmt.Printf("Installed assets into %s\n", cache.Name())
	case "activate":
		removed, err := cache.Activate(ctx)
		if err != nil {
			return fail(log, err, "activate failed")
		}
		fmt.Printf("Active cache: %s (removed %d stale)\n", cache.Name(), len(removed))
		for _, name := range removed {
			fmt.Printf("  - %s\n", name)
		}
	case "fetch":
		if len(argv) < 2 {
			fmt.Fprintf(os.Stderr, "Error: missing url\n")
			return 1
		}
		entry, err := cache.Fetch(ctx, argv[1])
		if err != nil {
			return fail(log, err, "fetch failed")
		}
		fmt.Fprintf(os.Stderr, "%s: status %d, %d bytes\n", entry.URL, entry.StatusCode, len(entry.Body))
		os.Stdout.Write(entry.Body)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown assets subcommand %q\n", argv[0])
		fs.Usage()
		return 1
	}
	return 0
}

func newAssetStore(ctx context.Context, cfg *config.Config) (assets.Store, func(), error) {
	if cfg.AssetStore == "redis" {
		store, err := assets.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	store, err := assets.NewDirStore(cfg.AssetDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}
