package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yunstech/tiktok-downloader/pkg/models"
)

const (
	jobKeyPrefix       = "job:"
	videosKeyPrefix    = "videos:"
	pendingKeyPrefix   = "pending:"
	deliveredKeyPrefix = "delivered:"
	jobQueueKey        = "job_queue"
	downloadedSetKey   = "downloaded_videos"
	videoFilesKey      = "video_files"
)

// setStageScript enforces the forward-only stage machine on the Redis
// side, so two workers racing on the same job cannot move it backwards.
// Returns 1 on success, 0 on an invalid transition, -1 if the job is
// missing.
var setStageScript = redis.NewScript(`
local rank = {pending=0, scraping=1, downloading=2, completed=3}
local current = redis.call('HGET', KEYS[1], 'stage')
if not current then return -1 end
local target = ARGV[1]
if current ~= target then
  if current == 'failed' then return 0 end
  if target ~= 'failed' then
    local cr = rank[current]
    local tr = rank[target]
    if cr == nil or tr == nil or tr <= cr then return 0 end
  end
end
redis.call('HSET', KEYS[1], 'stage', target, 'updated_at', ARGV[2])
if target == 'failed' and ARGV[3] ~= '' then
  redis.call('HSET', KEYS[1], 'error', ARGV[3])
end
return 1
`)

// RedisStore is the production JobStore. Jobs live in per-job hashes,
// the work queue is a list consumed with a blocking pop, and the dedup
// sets give MarkDownloaded/MarkDelivered their atomic check-and-set via
// SADD's return value.
type RedisStore struct {
	client *redis.Client
	// popWait bounds each blocking queue read so NextJob stays
	// responsive to shutdown.
	popWait time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client:  client,
		popWait: 5 * time.Second,
	}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func jobKey(id string) string       { return jobKeyPrefix + id }
func videosKey(id string) string    { return videosKeyPrefix + id }
func pendingKey(id string) string   { return pendingKeyPrefix + id }
func deliveredKey(id string) string { return deliveredKeyPrefix + id }

func (s *RedisStore) CreateJob(ctx context.Context, username string, maxVideos int) (*models.Job, error) {
	now := time.Now()
	job := &models.Job{
		ID:        uuid.NewString(),
		Username:  username,
		Stage:     models.StagePending,
		MaxVideos: maxVideos,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fields := map[string]interface{}{
		"id":                job.ID,
		"username":          job.Username,
		"stage":             string(job.Stage),
		"max_videos":        job.MaxVideos,
		"error":             "",
		"created_at":        job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":        job.UpdatedAt.Format(time.RFC3339Nano),
		"total_videos":      0,
		"downloaded_videos": 0,
		"failed_videos":     0,
		"delivered_videos":  0,
	}
	if err := s.client.HSet(ctx, jobKey(job.ID), fields).Err(); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	job := &models.Job{
		ID:       fields["id"],
		Username: fields["username"],
		Stage:    models.Stage(fields["stage"]),
		Error:    fields["error"],
	}
	job.MaxVideos, _ = strconv.Atoi(fields["max_videos"])
	job.TotalVideos, _ = strconv.Atoi(fields["total_videos"])
	job.DownloadedVideos, _ = strconv.Atoi(fields["downloaded_videos"])
	job.FailedVideos, _ = strconv.Atoi(fields["failed_videos"])
	job.DeliveredVideos, _ = strconv.Atoi(fields["delivered_videos"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])

	return job, nil
}

func (s *RedisStore) setStage(ctx context.Context, id string, stage models.Stage, reason string) error {
	res, err := setStageScript.Run(ctx, s.client,
		[]string{jobKey(id)},
		string(stage), time.Now().Format(time.RFC3339Nano), reason,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrInvalidTransition
	default:
		return ErrJobNotFound
	}
}

func (s *RedisStore) SetStage(ctx context.Context, id string, stage models.Stage) error {
	if !stage.Valid() {
		return ErrInvalidTransition
	}
	return s.setStage(ctx, id, stage, "")
}

func (s *RedisStore) FailJob(ctx context.Context, id string, reason string) error {
	return s.setStage(ctx, id, models.StageFailed, reason)
}

func (s *RedisStore) SetCounts(ctx context.Context, id string, total, downloaded, failed int) error {
	exists, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if exists == 0 {
		return ErrJobNotFound
	}

	return s.client.HSet(ctx, jobKey(id), map[string]interface{}{
		"total_videos":      total,
		"downloaded_videos": downloaded,
		"failed_videos":     failed,
		"updated_at":        time.Now().Format(time.RFC3339Nano),
	}).Err()
}

func (s *RedisStore) IncrDelivered(ctx context.Context, id string, n int) (int, error) {
	val, err := s.client.HIncrBy(ctx, jobKey(id), "delivered_videos", int64(n)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment delivered count: %w", err)
	}
	return int(val), nil
}

func (s *RedisStore) EnqueueJob(ctx context.Context, id string) error {
	return s.client.LPush(ctx, jobQueueKey, id).Err()
}

func (s *RedisStore) NextJob(ctx context.Context) (string, error) {
	res, err := s.client.BRPop(ctx, s.popWait, jobQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoJob
		}
		if ctx.Err() != nil {
			return "", ErrNoJob
		}
		return "", fmt.Errorf("failed to pop job queue: %w", err)
	}
	// BRPop returns [key, value]
	return res[1], nil
}

func (s *RedisStore) SaveVideos(ctx context.Context, jobID string, videos []models.VideoInfo) error {
	data, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("failed to marshal videos: %w", err)
	}
	return s.client.Set(ctx, videosKey(jobID), data, 0).Err()
}

func (s *RedisStore) Videos(ctx context.Context, jobID string) ([]models.VideoInfo, error) {
	data, err := s.client.Get(ctx, videosKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch videos: %w", err)
	}

	var videos []models.VideoInfo
	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal videos: %w", err)
	}
	return videos, nil
}

func (s *RedisStore) MarkDownloaded(ctx context.Context, videoID string) (bool, error) {
	added, err := s.client.SAdd(ctx, downloadedSetKey, videoID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark downloaded: %w", err)
	}
	return added == 1, nil
}

func (s *RedisStore) ClearDownloaded(ctx context.Context, videoID string) error {
	return s.client.SRem(ctx, downloadedSetKey, videoID).Err()
}

// MarkDelivered uses a per-job set: the downloaded set is a cross-job
// cache, but delivery happens once per job per video.
func (s *RedisStore) MarkDelivered(ctx context.Context, jobID, videoID string) (bool, error) {
	added, err := s.client.SAdd(ctx, deliveredKey(jobID), videoID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark delivered: %w", err)
	}
	return added == 1, nil
}

func (s *RedisStore) IsDelivered(ctx context.Context, jobID, videoID string) (bool, error) {
	member, err := s.client.SIsMember(ctx, deliveredKey(jobID), videoID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivered: %w", err)
	}
	return member, nil
}

func (s *RedisStore) SetVideoFile(ctx context.Context, videoID, path string) error {
	return s.client.HSet(ctx, videoFilesKey, videoID, path).Err()
}

func (s *RedisStore) VideoFile(ctx context.Context, videoID string) (string, error) {
	path, err := s.client.HGet(ctx, videoFilesKey, videoID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch video file: %w", err)
	}
	return path, nil
}

func (s *RedisStore) PushPending(ctx context.Context, pv models.PendingVideo) error {
	data, err := json.Marshal(pv)
	if err != nil {
		return fmt.Errorf("failed to marshal pending video: %w", err)
	}
	return s.client.RPush(ctx, pendingKey(pv.JobID), data).Err()
}

func (s *RedisStore) PushPendingFront(ctx context.Context, pvs []models.PendingVideo) error {
	if len(pvs) == 0 {
		return nil
	}

	key := pendingKey(pvs[0].JobID)
	// LPush in reverse so the slice order is preserved at the head
	for i := len(pvs) - 1; i >= 0; i-- {
		data, err := json.Marshal(pvs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal pending video: %w", err)
		}
		if err := s.client.LPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("failed to push pending video: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) PopPending(ctx context.Context, jobID string, n int) ([]models.PendingVideo, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := s.client.LPopCount(ctx, pendingKey(jobID), n).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop pending videos: %w", err)
	}

	pvs := make([]models.PendingVideo, 0, len(raw))
	for _, item := range raw {
		var pv models.PendingVideo
		if err := json.Unmarshal([]byte(item), &pv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending video: %w", err)
		}
		pvs = append(pvs, pv)
	}
	return pvs, nil
}

func (s *RedisStore) PendingCount(ctx context.Context, jobID string) (int, error) {
	n, err := s.client.LLen(ctx, pendingKey(jobID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending queue length: %w", err)
	}
	return int(n), nil
}

var _ JobStore = (*RedisStore)(nil)
