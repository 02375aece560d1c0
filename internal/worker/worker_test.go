package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunstech/tiktok-downloader/internal/downloader"
	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/storage"
	"github.com/yunstech/tiktok-downloader/pkg/store"
	"github.com/yunstech/tiktok-downloader/pkg/tiktok"
)

type fakeEngine struct {
	videos    []models.VideoInfo
	scrapeErr error
	closed    bool
}

func (f *fakeEngine) Initialize(ctx context.Context) error { return nil }

func (f *fakeEngine) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	if f.scrapeErr != nil {
		return nil, f.scrapeErr
	}
	return &models.UserProfile{
		Username:   username,
		Nickname:   "Test Creator",
		VideoCount: len(f.videos),
	}, nil
}

func (f *fakeEngine) GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error) {
	if f.scrapeErr != nil {
		return nil, f.scrapeErr
	}
	return f.videos, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

type fetchAll struct{}

func (fetchAll) Fetch(ctx context.Context, video models.VideoInfo) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("media-" + video.VideoID)), nil
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

func testWorker(t *testing.T, engine tiktok.Scraper) (*Worker, *store.MemoryStore, *int32) {
	t.Helper()

	js := store.NewMemoryStore()
	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	log, _ := logger.New(logger.Options{Level: "disabled"})

	coord := downloader.NewCoordinator(js, files, fetchAll{}, nil, nil, downloader.Config{
		Workers:   1,
		BatchSize: 5,
	}, log)

	var factoryCalls int32
	w := New(js, func() tiktok.Scraper {
		atomic.AddInt32(&factoryCalls, 1)
		return engine
	}, coord, log)
	return w, js, &factoryCalls
}

func TestProcessJobRunsAllStages(t *testing.T) {
	engine := &fakeEngine{videos: catalog(3)}
	w, js, _ := testWorker(t, engine)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	require.NoError(t, w.ProcessJob(ctx, job.ID))

	got, err := js.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, got.Stage)
	assert.Equal(t, 3, got.TotalVideos)
	assert.Equal(t, 3, got.DownloadedVideos)
	assert.True(t, engine.closed, "engine must be released after the scrape")

	saved, err := js.Videos(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}

func TestProcessJobSkipsTerminalJob(t *testing.T) {
	engine := &fakeEngine{videos: catalog(1)}
	w, js, factoryCalls := testWorker(t, engine)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)
	require.NoError(t, js.FailJob(ctx, job.ID, "gave up"))

	require.NoError(t, w.ProcessJob(ctx, job.ID))
	assert.Zero(t, atomic.LoadInt32(factoryCalls), "finished jobs must not be re-scraped")
}

func TestProcessJobResumesFromDownloadingStage(t *testing.T) {
	engine := &fakeEngine{videos: catalog(2)}
	w, js, factoryCalls := testWorker(t, engine)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)
	require.NoError(t, js.SaveVideos(ctx, job.ID, catalog(2)))
	require.NoError(t, js.SetStage(ctx, job.ID, models.StageScraping))
	require.NoError(t, js.SetStage(ctx, job.ID, models.StageDownloading))

	require.NoError(t, w.ProcessJob(ctx, job.ID))

	assert.Zero(t, atomic.LoadInt32(factoryCalls), "resume must use the stored catalog, not a new scrape")

	got, err := js.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, got.Stage)
	assert.Equal(t, 2, got.DownloadedVideos)
}

func TestProcessJobFailsWithCookieHintOnBlockedScrape(t *testing.T) {
	engine := &fakeEngine{
		scrapeErr: errs.Newf(errs.KindBlocking, "fetch_page", "empty response from profile page"),
	}
	w, js, _ := testWorker(t, engine)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	err = w.ProcessJob(ctx, job.ID)
	require.Error(t, err)

	got, err := js.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Contains(t, got.Error, "TIKTOK_COOKIE", "blocked scrapes should point at the session cookie")
}

func TestProcessJobFailsPlainlyOnTerminalScrapeError(t *testing.T) {
	engine := &fakeEngine{
		scrapeErr: errs.Newf(errs.KindTerminal, "fetch_page", "profile not found at https://www.tiktok.com/@creator"),
	}
	w, js, _ := testWorker(t, engine)
	ctx := context.Background()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	err = w.ProcessJob(ctx, job.ID)
	require.Error(t, err)

	got, err := js.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, got.Stage)
	assert.Contains(t, got.Error, "profile not found")
	assert.NotContains(t, got.Error, "TIKTOK_COOKIE")
}

func TestRunConsumesQueuedJobs(t *testing.T) {
	engine := &fakeEngine{videos: catalog(1)}
	w, js, _ := testWorker(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)
	require.NoError(t, js.EnqueueJob(ctx, job.ID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		got, err := js.GetJob(context.Background(), job.ID)
		return err == nil && got.Stage == models.StageCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
