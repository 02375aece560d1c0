package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/yunstech/tiktok-downloader/internal/downloader"
	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/store"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

// EngineFactory builds a fresh acquisition engine for one job. Each job
// gets its own engine so the one-way strategy switchover of a blocked
// run does not leak into the next.
type EngineFactory func() tiktok.Scraper

// Worker consumes the job queue and drives each job through its
// stages: scrape the catalog, download the files, deliver the batches.
type Worker struct {
	store     store.JobStore
	newEngine EngineFactory
	coord     *downloader.Coordinator
	log       logger.Logger
}

// New creates a worker.
func New(js store.JobStore, newEngine EngineFactory, coord *downloader.Coordinator, log logger.Logger) *Worker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Worker{
		store:     js,
		newEngine: newEngine,
		coord:     coord,
		log:       log.WithField("component", "worker"),
	}
}

// Run consumes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")

	for {
		if err := ctx.Err(); err != nil {
			w.log.Info("worker stopping")
			return nil
		}

		jobID, err := w.store.NextJob(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNoJob) {
				continue
			}
			w.log.WithError(err).Error("failed to read job queue")
			continue
		}

		if err := w.ProcessJob(ctx, jobID); err != nil {
			w.log.WithError(err).ErrorWithFields("job failed", map[string]interface{}{
				"job_id": jobID,
			})
		}
	}
}

// ProcessJob runs one job end to end. Jobs interrupted mid-download
// resume from the stored catalog instead of re-scraping.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) error {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Stage.Terminal() {
		w.log.InfoWithFields("skipping finished job", map[string]interface{}{
			"job_id": job.ID,
			"stage":  string(job.Stage),
		})
		return nil
	}

	log := w.log.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"username": job.Username,
	})
	log.InfoWithFields("processing job", map[string]interface{}{"stage": string(job.Stage)})

	var videos []models.VideoInfo
	if job.Stage == models.StageDownloading {
		// resume: the catalog was already scraped and persisted
		videos, err = w.store.Videos(ctx, job.ID)
		if err != nil {
			return w.fail(ctx, job, fmt.Errorf("failed to load stored catalog: %w", err))
		}
		log.InfoWithFields("resuming download stage", map[string]interface{}{
			"videos": len(videos),
		})
	} else {
		videos, err = w.scrape(ctx, job, log)
		if err != nil {
			return w.fail(ctx, job, err)
		}
	}

	if err := w.store.SetStage(ctx, job.ID, models.StageDownloading); err != nil {
		return w.fail(ctx, job, fmt.Errorf("failed to enter download stage: %w", err))
	}

	summary, err := w.coord.Download(ctx, job, videos)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	if err := w.store.SetStage(ctx, job.ID, models.StageCompleted); err != nil {
		return w.fail(ctx, job, fmt.Errorf("failed to complete job: %w", err))
	}

	log.InfoWithFields("job completed", map[string]interface{}{
		"total":      summary.Total,
		"downloaded": summary.Downloaded,
		"duplicates": summary.Duplicates,
		"failed":     summary.Failed,
	})
	return nil
}

// scrape runs the acquisition stage through a fresh engine.
func (w *Worker) scrape(ctx context.Context, job *models.Job, log logger.Logger) ([]models.VideoInfo, error) {
	if err := w.store.SetStage(ctx, job.ID, models.StageScraping); err != nil {
		return nil, fmt.Errorf("failed to enter scrape stage: %w", err)
	}

	engine := w.newEngine()
	if err := engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize acquisition engine: %w", err)
	}
	defer engine.Close()

	profile, err := engine.GetUserProfile(ctx, job.Username)
	if err != nil {
		return nil, err
	}
	log.InfoWithFields("profile found", map[string]interface{}{
		"nickname": profile.Nickname,
		"videos":   profile.VideoCount,
	})

	videos, err := engine.GetUserVideos(ctx, job.Username, job.MaxVideos)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"videos": len(videos)}
	if eng, ok := engine.(interface{ ActiveStrategy() tiktok.Strategy }); ok {
		fields["strategy"] = string(eng.ActiveStrategy())
	}
	log.InfoWithFields("catalog scraped", fields)

	if err := w.store.SaveVideos(ctx, job.ID, videos); err != nil {
		return nil, fmt.Errorf("failed to persist catalog: %w", err)
	}
	if err := w.store.SetCounts(ctx, job.ID, len(videos), 0, 0); err != nil {
		log.WithError(err).Warn("failed to record catalog size")
	}
	return videos, nil
}

// fail marks the job failed, rewriting bot-detection errors into
// something a user can act on.
func (w *Worker) fail(ctx context.Context, job *models.Job, cause error) error {
	reason := cause.Error()
	if errs.IsBlocking(cause) {
		reason = fmt.Sprintf(
			"TikTok blocked the scrape (%s). Configure a session cookie via TIKTOK_COOKIE or 'auth login' and retry.",
			cause,
		)
	}

	if err := w.store.FailJob(ctx, job.ID, reason); err != nil {
		w.log.WithError(err).ErrorWithFields("failed to mark job failed", map[string]interface{}{
			"job_id": job.ID,
		})
	}
	return cause
}
