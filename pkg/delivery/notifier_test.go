package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/store"
)

type fakeSender struct {
	batches []models.DeliveryBatch
	fail    bool
}

func (f *fakeSender) SendBatch(ctx context.Context, batch models.DeliveryBatch) error {
	if f.fail {
		return errors.New("destination unreachable")
	}
	f.batches = append(f.batches, batch)
	return nil
}

func setup(t *testing.T, sender Sender) (*Notifier, *store.MemoryStore, string) {
	t.Helper()

	js := store.NewMemoryStore()
	log, _ := logger.New(logger.Options{Level: "disabled"})
	n := NewNotifier(js, sender, 5, "dest-1", log)

	job, err := js.CreateJob(context.Background(), "creator", 0)
	require.NoError(t, err)
	return n, js, job.ID
}

func push(t *testing.T, js *store.MemoryStore, jobID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, js.PushPending(context.Background(), models.PendingVideo{
			JobID:     jobID,
			VideoID:   fmt.Sprintf("v%02d", i+1),
			LocalPath: fmt.Sprintf("/data/creator/v%02d.mp4", i+1),
		}))
	}
}

func TestFlushSendsOnlyFullBatches(t *testing.T) {
	sender := &fakeSender{}
	n, js, jobID := setup(t, sender)
	ctx := context.Background()

	push(t, js, jobID, 7)
	require.NoError(t, n.Flush(ctx, jobID, false))

	require.Len(t, sender.batches, 1)
	assert.Len(t, sender.batches[0].Items, 5)
	assert.Equal(t, "dest-1", sender.batches[0].DestinationID)
	assert.Equal(t, "v01", sender.batches[0].Items[0].VideoID)

	left, err := js.PendingCount(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, left, "partial batch stays queued until the final flush")
}

func TestFinalFlushDrainsPartialBatch(t *testing.T) {
	sender := &fakeSender{}
	n, js, jobID := setup(t, sender)
	ctx := context.Background()

	push(t, js, jobID, 12)
	require.NoError(t, n.Flush(ctx, jobID, true))

	require.Len(t, sender.batches, 3)
	assert.Len(t, sender.batches[0].Items, 5)
	assert.Len(t, sender.batches[1].Items, 5)
	assert.Len(t, sender.batches[2].Items, 2)

	job, err := js.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 12, job.DeliveredVideos)
}

func TestFlushMarksVideosDelivered(t *testing.T) {
	sender := &fakeSender{}
	n, js, jobID := setup(t, sender)
	ctx := context.Background()

	push(t, js, jobID, 5)
	require.NoError(t, n.Flush(ctx, jobID, false))

	delivered, err := js.IsDelivered(ctx, jobID, "v03")
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestFlushSkipsAlreadyDeliveredVideos(t *testing.T) {
	sender := &fakeSender{}
	n, js, jobID := setup(t, sender)
	ctx := context.Background()

	_, err := js.MarkDelivered(ctx, jobID, "v02")
	require.NoError(t, err)

	push(t, js, jobID, 5)
	require.NoError(t, n.Flush(ctx, jobID, true))

	require.Len(t, sender.batches, 1)
	assert.Len(t, sender.batches[0].Items, 4, "the duplicate must not go out twice")
	for _, item := range sender.batches[0].Items {
		assert.NotEqual(t, "v02", item.VideoID)
	}

	job, err := js.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 4, job.DeliveredVideos)
}

func TestFlushDeliversSameVideosForASecondJob(t *testing.T) {
	sender := &fakeSender{}
	n, js, job1 := setup(t, sender)
	ctx := context.Background()

	job2, err := js.CreateJob(ctx, "creator", 0)
	require.NoError(t, err)

	// first job delivers the catalog
	push(t, js, job1, 3)
	require.NoError(t, n.Flush(ctx, job1, true))
	require.Len(t, sender.batches, 1)

	// a second job for the same creator re-offers the same video IDs;
	// delivery dedup is per job, so they all go out again
	for i := 1; i <= 3; i++ {
		require.NoError(t, js.PushPending(ctx, models.PendingVideo{
			JobID:     job2.ID,
			VideoID:   fmt.Sprintf("v%02d", i),
			LocalPath: fmt.Sprintf("/data/creator/v%02d.mp4", i),
		}))
	}
	require.NoError(t, n.Flush(ctx, job2.ID, true))

	require.Len(t, sender.batches, 2)
	assert.Len(t, sender.batches[1].Items, 3)
	assert.Equal(t, job2.ID, sender.batches[1].JobID)

	got, err := js.GetJob(ctx, job2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.DeliveredVideos)

	// within a job the dedup still holds
	ok, err := js.MarkDelivered(ctx, job2.ID, "v01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlushRequeuesBatchOnSendFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	n, js, jobID := setup(t, sender)
	ctx := context.Background()

	push(t, js, jobID, 5)
	err := n.Flush(ctx, jobID, false)
	require.Error(t, err)

	// the batch is back at the head, in order, and not marked delivered
	count, err := js.PendingCount(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	popped, err := js.PopPending(ctx, jobID, 1)
	require.NoError(t, err)
	assert.Equal(t, "v01", popped[0].VideoID)

	delivered, err := js.IsDelivered(ctx, jobID, "v01")
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestFlushNoopOnEmptyQueue(t *testing.T) {
	sender := &fakeSender{}
	n, _, jobID := setup(t, sender)

	require.NoError(t, n.Flush(context.Background(), jobID, true))
	assert.Empty(t, sender.batches)
}
