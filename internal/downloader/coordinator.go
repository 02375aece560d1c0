package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/ratelimit"
	"github.com/yunstech/tiktok-downloader/pkg/retry"
	"github.com/yunstech/tiktok-downloader/pkg/store"
)

// FileStore is the slice of the storage manager the coordinator needs.
type FileStore interface {
	HasVideo(username, videoID string) bool
	SaveVideo(r io.Reader, username, videoID string) (string, error)
	VideoPath(username, videoID string) string
}

// BatchFlusher hands accumulated downloads to the delivery boundary.
// final marks the end-of-job flush that drains a partial batch.
type BatchFlusher interface {
	Flush(ctx context.Context, jobID string, final bool) error
}

// Config tunes the coordinator.
type Config struct {
	// Workers bounds concurrent downloads.
	Workers int
	// BatchSize is the delivery batch threshold.
	BatchSize int
	// RetryAttempts is the per-video retry budget before the video is
	// skipped.
	RetryAttempts int
}

// Summary is the outcome of one job's download phase.
type Summary struct {
	Total      int
	Downloaded int
	Duplicates int
	Failed     int
}

// Coordinator runs the download phase of a job: it claims each catalog
// entry, fetches the media through a bounded worker pool, records the
// file, and feeds the delivery queue in batches. A video that keeps
// failing is skipped; a full disk aborts the whole job.
type Coordinator struct {
	store   store.JobStore
	files   FileStore
	fetcher MediaFetcher
	flusher BatchFlusher
	limiter ratelimit.Limiter
	cfg     Config
	log     logger.Logger
}

// NewCoordinator wires the download phase.
func NewCoordinator(js store.JobStore, files FileStore, fetcher MediaFetcher, flusher BatchFlusher, limiter ratelimit.Limiter, cfg Config, log logger.Logger) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Coordinator{
		store:   js,
		files:   files,
		fetcher: fetcher,
		flusher: flusher,
		limiter: limiter,
		cfg:     cfg,
		log:     log.WithField("component", "coordinator"),
	}
}

// Download processes the catalog for one job. It returns a non-nil
// error only when the job must abort (disk full or cancellation);
// per-video failures are counted and skipped.
func (c *Coordinator) Download(ctx context.Context, job *models.Job, videos []models.VideoInfo) (Summary, error) {
	summary := Summary{Total: len(videos)}
	if len(videos) == 0 {
		return summary, c.flushTail(ctx, job.ID)
	}

	c.log.InfoWithFields("starting downloads", map[string]interface{}{
		"job_id":   job.ID,
		"username": job.Username,
		"videos":   len(videos),
		"workers":  c.cfg.Workers,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		abortErr error
		sem      = make(chan struct{}, c.cfg.Workers)
	)

	abort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
		cancel()
	}

	for _, video := range videos {
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(video models.VideoInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := c.processVideo(runCtx, job, video)
			mu.Lock()
			switch outcome {
			case outcomeDownloaded:
				summary.Downloaded++
			case outcomeDuplicate:
				summary.Duplicates++
			case outcomeFailed:
				summary.Failed++
			}
			mu.Unlock()

			if err != nil {
				abort(err)
			}
		}(video)
	}
	wg.Wait()

	if abortErr != nil {
		return summary, abortErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if err := c.store.SetCounts(ctx, job.ID, summary.Total, summary.Downloaded+summary.Duplicates, summary.Failed); err != nil {
		c.log.WithError(err).Warn("failed to record job counts")
	}

	c.log.InfoWithFields("downloads finished", map[string]interface{}{
		"job_id":     job.ID,
		"downloaded": summary.Downloaded,
		"duplicates": summary.Duplicates,
		"failed":     summary.Failed,
	})

	return summary, c.flushTail(ctx, job.ID)
}

type outcome int

const (
	outcomeDownloaded outcome = iota
	outcomeDuplicate
	outcomeFailed
)

// processVideo handles one catalog entry. The returned error is non-nil
// only for conditions that abort the whole job.
func (c *Coordinator) processVideo(ctx context.Context, job *models.Job, video models.VideoInfo) (outcome, error) {
	log := c.log.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"video_id": video.VideoID,
	})

	// Claim before fetch. Losing the claim means some earlier run
	// already downloaded this video: re-offer it for delivery and let
	// the delivery dedup decide whether it actually goes out again.
	claimed, err := c.store.MarkDownloaded(ctx, video.VideoID)
	if err != nil {
		log.WithError(err).Error("failed to claim video")
		return outcomeFailed, nil
	}
	if !claimed {
		log.Debug("video already downloaded, re-offering for delivery")
		c.offerPending(ctx, job, video)
		return outcomeDuplicate, nil
	}

	// The claim is new but the file may already exist from an
	// interrupted run that crashed between save and mark.
	if c.files.HasVideo(job.Username, video.VideoID) {
		path := c.files.VideoPath(job.Username, video.VideoID)
		if err := c.store.SetVideoFile(ctx, video.VideoID, path); err != nil {
			log.WithError(err).Warn("failed to record video file")
		}
		c.offerPending(ctx, job, video)
		return outcomeDuplicate, nil
	}

	path, err := c.fetchAndSave(ctx, job, video)
	if err != nil {
		// release the claim so a later run can retry this video
		if clearErr := c.store.ClearDownloaded(ctx, video.VideoID); clearErr != nil {
			log.WithError(clearErr).Warn("failed to release download claim")
		}

		if errs.IsResourceExhausted(err) {
			log.WithError(err).Error("storage exhausted, aborting job")
			return outcomeFailed, err
		}
		if ctx.Err() != nil {
			return outcomeFailed, nil
		}

		log.WithError(err).WarnWithFields("video failed after retries, skipping", map[string]interface{}{
			"attempts": c.cfg.RetryAttempts,
		})
		return outcomeFailed, nil
	}

	if err := c.store.SetVideoFile(ctx, video.VideoID, path); err != nil {
		log.WithError(err).Warn("failed to record video file")
	}
	c.offerPending(ctx, job, video)

	log.DebugWithFields("video downloaded", map[string]interface{}{"path": path})
	return outcomeDownloaded, nil
}

// fetchAndSave downloads one video with the per-video retry budget.
func (c *Coordinator) fetchAndSave(ctx context.Context, job *models.Job, video models.VideoInfo) (string, error) {
	policy := &retry.Policy{
		MaxAttempts: c.cfg.RetryAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: 2 * time.Second},
		RetryIf:     errs.IsRetryable,
		Logger:      c.log,
	}

	return retry.DoWithResult(ctx, policy, func() (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		body, err := c.fetcher.Fetch(ctx, video)
		if err != nil {
			return "", err
		}
		defer body.Close()

		path, err := c.files.SaveVideo(body, job.Username, video.VideoID)
		if err != nil {
			return "", fmt.Errorf("save failed: %w", err)
		}
		return path, nil
	})
}

// offerPending queues a video for delivery and flushes a full batch.
func (c *Coordinator) offerPending(ctx context.Context, job *models.Job, video models.VideoInfo) {
	pv := models.PendingVideo{
		JobID:     job.ID,
		VideoID:   video.VideoID,
		LocalPath: c.files.VideoPath(job.Username, video.VideoID),
	}
	if err := c.store.PushPending(ctx, pv); err != nil {
		c.log.WithError(err).Error("failed to queue video for delivery")
		return
	}

	count, err := c.store.PendingCount(ctx, job.ID)
	if err != nil {
		c.log.WithError(err).Warn("failed to read delivery queue length")
		return
	}
	if count >= c.cfg.BatchSize && c.flusher != nil {
		if err := c.flusher.Flush(ctx, job.ID, false); err != nil {
			c.log.WithError(err).Error("batch delivery failed")
		}
	}
}

// flushTail drains whatever partial batch remains at the end of a job.
func (c *Coordinator) flushTail(ctx context.Context, jobID string) error {
	if c.flusher == nil {
		return nil
	}
	return c.flusher.Flush(ctx, jobID, true)
}
