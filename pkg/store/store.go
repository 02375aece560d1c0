package store

import (
	"context"
	"errors"

	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// Errors returned by JobStore implementations.
var (
	// ErrJobNotFound means the job ID is unknown to the store.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition means a stage update would move a job
	// backwards or out of a terminal stage.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrNoJob means the queue was empty for the duration of the wait.
	ErrNoJob = errors.New("no job available")
)

// JobStore persists jobs, the work queue, per-video dedup state, and
// the pending delivery queues. Redis backs the worker deployment; the
// in-memory implementation backs one-shot CLI runs and tests.
type JobStore interface {
	// CreateJob persists a new pending job for the given creator.
	CreateJob(ctx context.Context, username string, maxVideos int) (*models.Job, error)

	// GetJob fetches a job by ID.
	GetJob(ctx context.Context, id string) (*models.Job, error)

	// SetStage advances a job's stage. Transitions are forward-only:
	// moving backwards or out of a terminal stage returns
	// ErrInvalidTransition. Setting the current stage again is a no-op
	// so a restarted worker can resume where it left off.
	SetStage(ctx context.Context, id string, stage models.Stage) error

	// FailJob marks a job failed and records the reason.
	FailJob(ctx context.Context, id string, reason string) error

	// SetCounts records catalog and download progress on the job.
	SetCounts(ctx context.Context, id string, total, downloaded, failed int) error

	// IncrDelivered atomically adds n to the job's delivered counter and
	// returns the new value.
	IncrDelivered(ctx context.Context, id string, n int) (int, error)

	// EnqueueJob pushes a job ID onto the work queue.
	EnqueueJob(ctx context.Context, id string) error

	// NextJob pops the next job ID, blocking until one is available or
	// ctx is done. Returns ErrNoJob when the wait expires empty.
	NextJob(ctx context.Context) (string, error)

	// SaveVideos stores the scraped catalog for a job so a restarted
	// worker can resume downloading without re-scraping.
	SaveVideos(ctx context.Context, jobID string, videos []models.VideoInfo) error

	// Videos returns the stored catalog for a job.
	Videos(ctx context.Context, jobID string) ([]models.VideoInfo, error)

	// MarkDownloaded claims a video for download. It returns true only
	// for the first caller; the check and the mark are one atomic
	// operation so two workers can never both claim the same video.
	MarkDownloaded(ctx context.Context, videoID string) (bool, error)

	// ClearDownloaded releases a download claim after a failed attempt
	// so a later run can retry the video.
	ClearDownloaded(ctx context.Context, videoID string) error

	// MarkDelivered claims a video for delivery, atomically like
	// MarkDownloaded. Delivery is scoped per job: two jobs for the same
	// creator each deliver the full catalog to their own destination.
	MarkDelivered(ctx context.Context, jobID, videoID string) (bool, error)

	// IsDelivered reports whether a video already went out for this job.
	IsDelivered(ctx context.Context, jobID, videoID string) (bool, error)

	// SetVideoFile records where a downloaded video lives on disk.
	SetVideoFile(ctx context.Context, videoID, path string) error

	// VideoFile returns the recorded path for a video, or "" if none.
	VideoFile(ctx context.Context, videoID string) (string, error)

	// PushPending appends a downloaded video to the job's delivery queue.
	PushPending(ctx context.Context, pv models.PendingVideo) error

	// PushPendingFront returns videos to the head of the delivery queue,
	// used when a delivery attempt fails after the videos were popped.
	PushPendingFront(ctx context.Context, pvs []models.PendingVideo) error

	// PopPending removes and returns up to n videos from the head of the
	// job's delivery queue, preserving download order.
	PopPending(ctx context.Context, jobID string, n int) ([]models.PendingVideo, error)

	// PendingCount returns the length of the job's delivery queue.
	PendingCount(ctx context.Context, jobID string) (int, error)
}
