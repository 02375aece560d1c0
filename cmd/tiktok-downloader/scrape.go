package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yunstech/tiktok-downloader/internal/downloader"
	"github.com/yunstech/tiktok-downloader/internal/worker"
	"github.com/yunstech/tiktok-downloader/pkg/auth"
	"github.com/yunstech/tiktok-downloader/pkg/config"
	"github.com/yunstech/tiktok-downloader/pkg/delivery"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/ratelimit"
	"github.com/yunstech/tiktok-downloader/pkg/storage"
	"github.com/yunstech/tiktok-downloader/pkg/store"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

var (
	// Scrape command flags
	outputDir   string
	concurrent  int
	rateLimit   int
	maxVideos   int
	cookieFlag  string
	proxyFlag   string
	sessionName string
	noBrowser   bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <username>",
	Short: "Download all videos from a TikTok creator",
	Long: `Download a TikTok creator's entire video catalog.

The scraper drives a headless browser first because the rendered page
carries the full catalog. When TikTok blocks the browser it falls back
to plain HTTP and parses the JSON state embedded in the profile page.

A session cookie improves reliability considerably. Provide one via:
  - Stored session (use 'tiktok-downloader auth login' to store)
  - TIKTOK_COOKIE environment variable
  - The --cookie flag`,
	Example: `  # Download everything from a creator
  tiktok-downloader scrape charlidamelio

  # Cap the catalog and pick an output directory
  tiktok-downloader scrape charlidamelio --max-videos 50 --output ./videos

  # Skip the browser entirely
  tiktok-downloader scrape charlidamelio --no-browser`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	scrapeCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent downloads")
	scrapeCmd.Flags().IntVar(&rateLimit, "rate-limit", 30, "requests per minute")
	scrapeCmd.Flags().IntVar(&maxVideos, "max-videos", 0, "maximum videos to download (0 = all)")
	scrapeCmd.Flags().StringVar(&cookieFlag, "cookie", "", "TikTok session cookie")
	scrapeCmd.Flags().StringVar(&proxyFlag, "proxy", "", "proxy URL for all TikTok traffic")
	scrapeCmd.Flags().StringVar(&sessionName, "session", "", "use a specific stored session")
	scrapeCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "skip the browser strategy and scrape over HTTP only")
}

func runScrape(cmd *cobra.Command, args []string) error {
	username := tiktok.SanitizeUsername(args[0])
	if !tiktok.IsValidUsername(username) {
		return fmt.Errorf("invalid TikTok username: %q", args[0])
	}

	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	resolveSession(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	js := store.NewMemoryStore()
	w, err := buildWorker(cfg, js, log)
	if err != nil {
		return err
	}

	job, err := js.CreateJob(ctx, username, maxVideos)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	fmt.Printf("Scraping @%s...\n", username)
	if err := w.ProcessJob(ctx, job.ID); err != nil {
		return err
	}

	done, err := js.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Done: %d/%d videos downloaded (%d failed) to %s\n",
		done.DownloadedVideos, done.TotalVideos, done.FailedVideos, cfg.Download.BaseDirectory)
	return nil
}

// loadConfigAndLogger loads configuration from all sources and sets up
// the global logger.
func loadConfigAndLogger() (*config.Config, logger.Logger, error) {
	flags := make(map[string]interface{})
	if cookieFlag != "" {
		flags["cookie"] = cookieFlag
	}
	if proxyFlag != "" {
		flags["proxy"] = proxyFlag
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrent != 3 {
		flags["concurrent"] = concurrent
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if rateLimit != 30 && rateLimit > 0 {
		cfg.RateLimit.RequestsPerMinute = rateLimit
	}

	if err := logger.Initialize(logger.Options{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		return nil, nil, err
	}
	return cfg, logger.GetLogger(), nil
}

// resolveSession fills in the session cookie from stored credentials
// when the config does not already carry one.
func resolveSession(cfg *config.Config, log logger.Logger) {
	if cfg.TikTok.Cookie != "" && sessionName == "" {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Debug("credential manager unavailable")
		return
	}

	var session *auth.Session
	if sessionName != "" {
		session, err = manager.Retrieve(sessionName)
	} else {
		session, err = manager.RetrieveDefault()
	}
	if err != nil {
		log.Debug("no stored session found, scraping anonymously")
		return
	}

	cfg.TikTok.Cookie = session.Cookie
	if session.UserAgent != "" {
		cfg.TikTok.UserAgent = session.UserAgent
	}
	log.WithField("session", session.Label).Info("using stored session")
}

// buildWorker wires the acquisition engine, download coordinator, and
// delivery boundary around the given job store.
func buildWorker(cfg *config.Config, js store.JobStore, log logger.Logger) (*worker.Worker, error) {
	files, err := storage.NewManager(cfg.Download.BaseDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open download directory: %w", err)
	}

	fetcher := downloader.NewHTTPFetcher(cfg.Download.DownloadTimeout, cfg.TikTok.UserAgent, cfg.TikTok.Cookie)
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	notifier := delivery.NewNotifier(js, &delivery.LogSender{Log: log}, cfg.Delivery.BatchSize, cfg.Delivery.Destination, log)

	coord := downloader.NewCoordinator(js, files, fetcher, notifier, limiter, downloader.Config{
		Workers:       cfg.Download.ConcurrentDownloads,
		BatchSize:     cfg.Delivery.BatchSize,
		RetryAttempts: cfg.Download.RetryAttempts,
	}, log)

	opts := tiktok.OptionsFromConfig(cfg, log)
	factory := func() tiktok.Scraper {
		if noBrowser {
			return tiktok.NewWebScraper(opts)
		}
		return tiktok.NewOrchestrator(opts)
	}

	return worker.New(js, factory, coord, log), nil
}
