package tiktok

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/yunstech/tiktok-downloader/pkg/errors"
	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
)

// fakeScraper scripts one strategy's behavior for orchestrator tests.
type fakeScraper struct {
	initErr    error
	profileErr error
	videosErr  error
	videos     []models.VideoInfo

	initCalls   int
	videoCalls  int
	closeCalls  int
	profileInfo *models.UserProfile
}

func (f *fakeScraper) Initialize(ctx context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeScraper) GetUserProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profileInfo != nil {
		return f.profileInfo, nil
	}
	return &models.UserProfile{Username: username}, nil
}

func (f *fakeScraper) GetUserVideos(ctx context.Context, username string, maxVideos int) ([]models.VideoInfo, error) {
	f.videoCalls++
	if f.videosErr != nil {
		return nil, f.videosErr
	}
	return f.videos, nil
}

func (f *fakeScraper) Close() error {
	f.closeCalls++
	return nil
}

func testLogger() logger.Logger {
	l, _ := logger.New(logger.Options{Level: "disabled"})
	return l
}

func TestOrchestratorStaysOnPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeScraper{videos: []models.VideoInfo{{VideoID: "v1"}}}
	fallback := &fakeScraper{}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StrategyBrowser, o.ActiveStrategy())

	videos, err := o.GetUserVideos(context.Background(), "creator", 0)
	require.NoError(t, err)
	assert.Len(t, videos, 1)
	assert.Equal(t, 0, fallback.initCalls, "fallback must stay cold")
}

func TestOrchestratorFallsBackOnInitFailure(t *testing.T) {
	primary := &fakeScraper{initErr: errs.Newf(errs.KindBlocking, "browser_init", "browser initialization timed out after 30s")}
	fallback := &fakeScraper{videos: []models.VideoInfo{{VideoID: "v1"}}}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StrategyWeb, o.ActiveStrategy())
	assert.Equal(t, 1, fallback.initCalls)
	assert.Equal(t, 1, primary.closeCalls)

	videos, err := o.GetUserVideos(context.Background(), "creator", 0)
	require.NoError(t, err)
	assert.Len(t, videos, 1)
	assert.Equal(t, 0, primary.videoCalls)
}

func TestOrchestratorReportsBothInitFailures(t *testing.T) {
	primary := &fakeScraper{initErr: errors.New("browser initialization timed out")}
	fallback := &fakeScraper{initErr: errors.New("invalid proxy url")}
	o := newOrchestrator(primary, fallback, testLogger())

	err := o.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser initialization timed out")
	assert.Contains(t, err.Error(), "invalid proxy url")
}

func TestOrchestratorSwitchesOnBlockingError(t *testing.T) {
	primary := &fakeScraper{videosErr: errs.Newf(errs.KindBlocking, "get_user_videos", "empty response")}
	fallback := &fakeScraper{videos: []models.VideoInfo{{VideoID: "v1"}}}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))

	videos, err := o.GetUserVideos(context.Background(), "creator", 0)
	require.NoError(t, err, "operation should be retried on the fallback")
	assert.Len(t, videos, 1)
	assert.Equal(t, StrategyWeb, o.ActiveStrategy())
	assert.Equal(t, 1, primary.closeCalls, "blocked browser should be shut down")
}

func TestOrchestratorSwitchoverIsOneWay(t *testing.T) {
	primary := &fakeScraper{videosErr: errs.Newf(errs.KindBlocking, "get_user_videos", "captcha challenge")}
	fallback := &fakeScraper{videos: []models.VideoInfo{{VideoID: "v1"}}}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))

	_, err := o.GetUserVideos(context.Background(), "creator", 0)
	require.NoError(t, err)
	primaryCallsAfterSwitch := primary.videoCalls

	// further operations never touch the primary again
	for i := 0; i < 3; i++ {
		_, err := o.GetUserVideos(context.Background(), "creator", 0)
		require.NoError(t, err)
	}
	assert.Equal(t, primaryCallsAfterSwitch, primary.videoCalls)
	assert.Equal(t, 1, fallback.initCalls, "fallback initializes once")
}

func TestOrchestratorDoesNotSwitchOnTerminalError(t *testing.T) {
	primary := &fakeScraper{profileErr: errs.Newf(errs.KindTerminal, "get_user_profile", "user does not exist")}
	fallback := &fakeScraper{}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))

	_, err := o.GetUserProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errs.IsTerminal(err))
	assert.Equal(t, StrategyBrowser, o.ActiveStrategy(), "terminal errors must not burn the switchover")
	assert.Equal(t, 0, fallback.initCalls)
}

func TestOrchestratorPropagatesFallbackErrors(t *testing.T) {
	primary := &fakeScraper{videosErr: errs.Newf(errs.KindBlocking, "get_user_videos", "bot detected")}
	fallback := &fakeScraper{videosErr: errs.Newf(errs.KindBlocking, "get_user_videos", "no videos in page state")}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))

	_, err := o.GetUserVideos(context.Background(), "creator", 0)
	require.Error(t, err)
	// already on the fallback: the error propagates, no further switch
	assert.Equal(t, StrategyWeb, o.ActiveStrategy())
	assert.Equal(t, 1, primary.videoCalls)
	assert.Equal(t, 1, fallback.videoCalls)
}

func TestOrchestratorClose(t *testing.T) {
	primary := &fakeScraper{}
	fallback := &fakeScraper{}
	o := newOrchestrator(primary, fallback, testLogger())

	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.Close())
	assert.Equal(t, 1, primary.closeCalls)
	assert.Equal(t, 0, fallback.closeCalls, "cold fallback needs no close")
}
