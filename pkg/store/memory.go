package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// MemoryStore is an in-process JobStore. It backs one-shot CLI runs
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu         sync.Mutex
	jobs       map[string]*models.Job
	videos     map[string][]models.VideoInfo
	downloaded map[string]bool
	delivered  map[string]bool
	files      map[string]string
	pending    map[string][]models.PendingVideo
	queue      chan string
}

// NewMemoryStore creates an empty in-memory store. The work queue holds
// up to 256 jobs; EnqueueJob errors instead of blocking once it fills.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]*models.Job),
		videos:     make(map[string][]models.VideoInfo),
		downloaded: make(map[string]bool),
		delivered:  make(map[string]bool),
		files:      make(map[string]string),
		pending:    make(map[string][]models.PendingVideo),
		queue:      make(chan string, 256),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, username string, maxVideos int) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &models.Job{
		ID:        uuid.NewString(),
		Username:  username,
		Stage:     models.StagePending,
		MaxVideos: maxVideos,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job

	copied := *job
	return &copied, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) SetStage(ctx context.Context, id string, stage models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !job.Stage.CanTransition(stage) {
		return ErrInvalidTransition
	}
	job.Stage = stage
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) FailJob(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if !job.Stage.CanTransition(models.StageFailed) {
		return ErrInvalidTransition
	}
	job.Stage = models.StageFailed
	job.Error = reason
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetCounts(ctx context.Context, id string, total, downloaded, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.TotalVideos = total
	job.DownloadedVideos = downloaded
	job.FailedVideos = failed
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) IncrDelivered(ctx context.Context, id string, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return 0, ErrJobNotFound
	}
	job.DeliveredVideos += n
	job.UpdatedAt = time.Now()
	return job.DeliveredVideos, nil
}

func (s *MemoryStore) EnqueueJob(ctx context.Context, id string) error {
	select {
	case s.queue <- id:
		return nil
	default:
		return fmt.Errorf("job queue full (capacity %d)", cap(s.queue))
	}
}

func (s *MemoryStore) NextJob(ctx context.Context) (string, error) {
	select {
	case id := <-s.queue:
		return id, nil
	case <-ctx.Done():
		return "", ErrNoJob
	}
}

func (s *MemoryStore) SaveVideos(ctx context.Context, jobID string, videos []models.VideoInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.videos[jobID] = append([]models.VideoInfo(nil), videos...)
	return nil
}

func (s *MemoryStore) Videos(ctx context.Context, jobID string) ([]models.VideoInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.VideoInfo(nil), s.videos[jobID]...), nil
}

func (s *MemoryStore) MarkDownloaded(ctx context.Context, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.downloaded[videoID] {
		return false, nil
	}
	s.downloaded[videoID] = true
	return true, nil
}

func (s *MemoryStore) ClearDownloaded(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.downloaded, videoID)
	return nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, jobID, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobID + "/" + videoID
	if s.delivered[key] {
		return false, nil
	}
	s.delivered[key] = true
	return true, nil
}

func (s *MemoryStore) IsDelivered(ctx context.Context, jobID, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.delivered[jobID+"/"+videoID], nil
}

func (s *MemoryStore) SetVideoFile(ctx context.Context, videoID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[videoID] = path
	return nil
}

func (s *MemoryStore) VideoFile(ctx context.Context, videoID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.files[videoID], nil
}

func (s *MemoryStore) PushPending(ctx context.Context, pv models.PendingVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[pv.JobID] = append(s.pending[pv.JobID], pv)
	return nil
}

func (s *MemoryStore) PushPendingFront(ctx context.Context, pvs []models.PendingVideo) error {
	if len(pvs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobID := pvs[0].JobID
	s.pending[jobID] = append(append([]models.PendingVideo(nil), pvs...), s.pending[jobID]...)
	return nil
}

func (s *MemoryStore) PopPending(ctx context.Context, jobID string, n int) ([]models.PendingVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.pending[jobID]
	if n > len(queue) {
		n = len(queue)
	}
	if n <= 0 {
		return nil, nil
	}

	popped := append([]models.PendingVideo(nil), queue[:n]...)
	s.pending[jobID] = queue[n:]
	return popped, nil
}

func (s *MemoryStore) PendingCount(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending[jobID]), nil
}

var _ JobStore = (*MemoryStore)(nil)
