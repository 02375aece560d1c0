package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yunstech/tiktok-downloader/pkg/store"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit <username>",
	Short: "Queue a scrape job for a worker to pick up",
	Long: `Queue a scrape job on the Redis job queue. A running worker picks it
up and processes it. Use 'tiktok-downloader status' to follow progress.`,
	Example: `  tiktok-downloader submit charlidamelio
  tiktok-downloader submit charlidamelio --max-videos 50`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address (default localhost:6379)")
	submitCmd.Flags().IntVar(&maxVideos, "max-videos", 0, "maximum videos to download (0 = all)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	username := tiktok.SanitizeUsername(args[0])
	if !tiktok.IsValidUsername(username) {
		return fmt.Errorf("invalid TikTok username: %q", args[0])
	}

	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js, err := store.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	defer js.Close()

	job, err := js.CreateJob(ctx, username, maxVideos)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if err := js.EnqueueJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	fmt.Printf("Job queued: %s (@%s)\n", job.ID, username)
	fmt.Printf("Check progress with: tiktok-downloader status %s\n", job.ID)
	return nil
}
