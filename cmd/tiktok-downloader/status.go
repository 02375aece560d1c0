package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/store"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:     "status <job-id>",
	Short:   "Show the state of a queued or running job",
	Example: `  tiktok-downloader status 5f0c2a9e-1b3d-4c7e-9a8f-2d6b4e8c0a1f`,
	Args:    cobra.ExactArgs(1),
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&redisAddr, "redis", "", "redis address (default localhost:6379)")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	job, err := js.GetJob(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Job:        %s\n", job.ID)
	fmt.Printf("Username:   @%s\n", job.Username)
	fmt.Printf("Stage:      %s\n", job.Stage)
	if job.MaxVideos > 0 {
		fmt.Printf("Cap:        %d videos\n", job.MaxVideos)
	}
	fmt.Printf("Videos:     %d total, %d downloaded, %d failed, %d delivered\n",
		job.TotalVideos, job.DownloadedVideos, job.FailedVideos, job.DeliveredVideos)
	fmt.Printf("Created:    %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:    %s\n", job.UpdatedAt.Format(time.RFC3339))
	if job.Stage == models.StageFailed && job.Error != "" {
		fmt.Printf("Error:      %s\n", job.Error)
	}
	return nil
}
