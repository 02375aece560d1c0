package downloader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/storage"
	"github.com/yunstech/tiktok-downloader/pkg/store"
)

// fakeFetcher serves canned bodies and scripted failures per video ID.
type fakeFetcher struct {
	mu       sync.Mutex
	failWith map[string]error
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		failWith: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, video models.VideoInfo) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls[video.VideoID]++
	err := f.failWith[video.VideoID]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("bytes-of-" + video.VideoID)), nil
}

// recordingFlusher drains the pending queue the way the notifier would
// and records each batch size.
type recordingFlusher struct {
	store     store.JobStore
	batchSize int

	mu      sync.Mutex
	batches []int
	finals  int
}

func (r *recordingFlusher) Flush(ctx context.Context, jobID string, final bool) error {
	for {
		n := r.batchSize
		count, err := r.store.PendingCount(ctx, jobID)
		if err != nil {
			return err
		}
		if count < n {
			if !final || count == 0 {
				break
			}
			n = count
		}

		popped, err := r.store.PopPending(ctx, jobID, n)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.batches = append(r.batches, len(popped))
		r.mu.Unlock()
	}
	if final {
		r.mu.Lock()
		r.finals++
		r.mu.Unlock()
	}
	return nil
}

func testCoordinator(t *testing.T, fetcher MediaFetcher, workers int) (*Coordinator, *store.MemoryStore, *recordingFlusher, *storage.Manager) {
	t.Helper()

	js := store.NewMemoryStore()
	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	flusher := &recordingFlusher{store: js, batchSize: 5}
	log, _ := logger.New(logger.Options{Level: "disabled"})

	c := NewCoordinator(js, files, fetcher, flusher, nil, Config{
		Workers:       workers,
		BatchSize:     5,
		RetryAttempts: 3,
	}, log)
	return c, js, flusher, files
}

func catalog(n int) []models.VideoInfo {
	videos := make([]models.VideoInfo, n)
	for i := range videos {
		videos[i] = models.VideoInfo{
			VideoID:  fmt.Sprintf("v%02d", i+1),
			MediaURL: fmt.Sprintf("https://cdn.example.com/v%02d.mp4", i+1),
		}
	}
	return videos
}

func TestDownloadDeliversInBatches(t *testing.T) {
	c, js, flusher, _ := testCoordinator(t, newFakeFetcher(), 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	summary, err := c.Download(ctx, job, catalog(12))
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Downloaded)
	assert.Zero(t, summary.Failed)
	// 12 videos with a batch size of 5: two full batches, then the
	// tail flush drains the remaining 2
	assert.Equal(t, []int{5, 5, 2}, flusher.batches)
	assert.Equal(t, 1, flusher.finals)

	got, err := js.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalVideos)
	assert.Equal(t, 12, got.DownloadedVideos)
}

func TestDownloadWritesFilesAndRecordsPaths(t *testing.T) {
	c, js, _, files := testCoordinator(t, newFakeFetcher(), 3)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	_, err = c.Download(ctx, job, catalog(3))
	require.NoError(t, err)

	for _, id := range []string{"v01", "v02", "v03"} {
		assert.True(t, files.HasVideo("creator", id))
		path, err := js.VideoFile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, files.VideoPath("creator", id), path)
	}
}

func TestDownloadSkipsPersistentlyFailingVideo(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failWith["v02"] = errs.Newf(errs.KindTransient, "fetch_media", "connection reset")

	c, js, _, _ := testCoordinator(t, fetcher, 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	summary, err := c.Download(ctx, job, catalog(3))
	require.NoError(t, err, "a single failing video must not fail the job")

	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, fetcher.calls["v02"], "retry budget should be spent")

	// the claim is released so a later run can retry
	claimed, err := js.MarkDownloaded(ctx, "v02")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestDownloadDoesNotRetryTerminalMediaErrors(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failWith["v01"] = errs.Newf(errs.KindTerminal, "fetch_media", "media gone for video v01 (status 404)")

	c, js, _, _ := testCoordinator(t, fetcher, 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	summary, err := c.Download(ctx, job, catalog(1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, fetcher.calls["v01"], "terminal errors burn no retries")
}

func TestDownloadAbortsWhenDiskFull(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failWith["v02"] = fmt.Errorf("write: %w", syscall.ENOSPC)

	c, js, _, _ := testCoordinator(t, fetcher, 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	_, err = c.Download(ctx, job, catalog(5))
	require.Error(t, err)
	assert.True(t, errs.IsResourceExhausted(err), "disk full must abort the job")
}

func TestDownloadIsIdempotent(t *testing.T) {
	c, js, flusher, _ := testCoordinator(t, newFakeFetcher(), 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	videos := catalog(3)
	first, err := c.Download(ctx, job, videos)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Downloaded)

	// a re-run downloads nothing but still re-offers everything so the
	// delivery dedup gets the final say
	second, err := c.Download(ctx, job, videos)
	require.NoError(t, err)
	assert.Zero(t, second.Downloaded)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, []int{3, 3}, flusher.batches)
}

func TestDownloadEmptyCatalogStillFlushesTail(t *testing.T) {
	c, js, flusher, _ := testCoordinator(t, newFakeFetcher(), 1)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	summary, err := c.Download(ctx, job, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Equal(t, 1, flusher.finals)
}
