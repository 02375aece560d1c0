package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yunstech/tiktok-downloader/pkg/store"
)

var redisAddr string

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker that processes queued jobs",
	Long: `Run a long-lived worker that consumes scrape jobs from the Redis
queue and processes them one at a time.

Submit jobs with 'tiktok-downloader submit' from any machine that can
reach the same Redis instance. The worker survives restarts: a job
interrupted mid-download resumes from its stored catalog.`,
	Example: `  # Run against a local Redis
  tiktok-downloader worker

  # Point at a shared Redis
  tiktok-downloader worker --redis redis.internal:6379`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address (default localhost:6379)")
	workerCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	workerCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent downloads")
	workerCmd.Flags().StringVar(&cookieFlag, "cookie", "", "TikTok session cookie")
	workerCmd.Flags().StringVar(&proxyFlag, "proxy", "", "proxy URL for all TikTok traffic")
	workerCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "skip the browser strategy and scrape over HTTP only")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	resolveSession(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	js, err := store.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	defer js.Close()

	w, err := buildWorker(cfg, js, log)
	if err != nil {
		return err
	}

	log.WithField("redis", cfg.Redis.Addr).Info("worker connected")
	return w.Run(ctx)
}
