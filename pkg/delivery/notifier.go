package delivery

import (
	"context"
	"fmt"

	"github.com/yunstech/tiktok-downloader/pkg/logger"
	"github.com/yunstech/tiktok-downloader/pkg/models"
	"github.com/yunstech/tiktok-downloader/pkg/store"
)

// Sender is the external delivery boundary. Implementations push a
// batch of downloaded videos to wherever they need to go.
type Sender interface {
	SendBatch(ctx context.Context, batch models.DeliveryBatch) error
}

// Notifier drains a job's pending queue into delivery batches. Flushes
// are synchronous: the caller decides when a batch boundary is reached
// and whether this is the final drain of a partial batch.
type Notifier struct {
	store       store.JobStore
	sender      Sender
	batchSize   int
	destination string
	log         logger.Logger
}

// NewNotifier wires the delivery boundary.
func NewNotifier(js store.JobStore, sender Sender, batchSize int, destination string, log logger.Logger) *Notifier {
	if batchSize <= 0 {
		batchSize = 5
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Notifier{
		store:       js,
		sender:      sender,
		batchSize:   batchSize,
		destination: destination,
		log:         log.WithField("component", "notifier"),
	}
}

// Flush sends full batches from the job's pending queue. With final
// set it also drains a trailing partial batch, so a 12-video job with
// a batch size of 5 goes out as 5, 5, and then 2.
func (n *Notifier) Flush(ctx context.Context, jobID string, final bool) error {
	for {
		count, err := n.store.PendingCount(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to read pending queue: %w", err)
		}

		size := n.batchSize
		if count < size {
			if !final || count == 0 {
				return nil
			}
			size = count
		}

		if err := n.sendOne(ctx, jobID, size); err != nil {
			return err
		}
	}
}

// sendOne pops and delivers a single batch.
func (n *Notifier) sendOne(ctx context.Context, jobID string, size int) error {
	popped, err := n.store.PopPending(ctx, jobID, size)
	if err != nil {
		return fmt.Errorf("failed to pop pending videos: %w", err)
	}
	if len(popped) == 0 {
		return nil
	}

	// Drop anything that already went out for this job. Duplicates reach
	// the queue when a re-run re-offers videos it found already
	// downloaded.
	items := popped[:0]
	for _, pv := range popped {
		delivered, err := n.store.IsDelivered(ctx, jobID, pv.VideoID)
		if err != nil {
			return fmt.Errorf("failed to check delivery state: %w", err)
		}
		if delivered {
			n.log.DebugWithFields("skipping already delivered video", map[string]interface{}{
				"job_id":   jobID,
				"video_id": pv.VideoID,
			})
			continue
		}
		items = append(items, pv)
	}
	if len(items) == 0 {
		return nil
	}

	batch := models.DeliveryBatch{
		JobID:         jobID,
		DestinationID: n.destination,
		Items:         items,
	}

	if err := n.sender.SendBatch(ctx, batch); err != nil {
		// put the batch back at the head so order survives a retry
		if pushErr := n.store.PushPendingFront(ctx, items); pushErr != nil {
			n.log.WithError(pushErr).Error("failed to requeue undelivered batch")
		}
		return fmt.Errorf("failed to deliver batch: %w", err)
	}

	for _, pv := range items {
		if _, err := n.store.MarkDelivered(ctx, jobID, pv.VideoID); err != nil {
			n.log.WithError(err).Warn("failed to mark video delivered")
		}
	}
	if _, err := n.store.IncrDelivered(ctx, jobID, len(items)); err != nil {
		n.log.WithError(err).Warn("failed to update delivered counter")
	}

	n.log.InfoWithFields("batch delivered", map[string]interface{}{
		"job_id": jobID,
		"count":  len(items),
	})
	return nil
}

// LogSender is a Sender that only logs, for local runs without a real
// delivery destination.
type LogSender struct {
	Log logger.Logger
}

func (l *LogSender) SendBatch(ctx context.Context, batch models.DeliveryBatch) error {
	log := l.Log
	if log == nil {
		log = logger.GetLogger()
	}
	for _, item := range batch.Items {
		log.InfoWithFields("delivering video", map[string]interface{}{
			"job_id":   batch.JobID,
			"video_id": item.VideoID,
			"path":     item.LocalPath,
		})
	}
	return nil
}
