// Package recovery drains the dead-letter queue through the event
// pipeline for manual or batch recovery.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/mdon/mailtrack/internal/logging"
	"github.com/mdon/mailtrack/internal/metrics"
	"github.com/mdon/mailtrack/internal/processor"
	"github.com/mdon/mailtrack/internal/queue"
)

// DefaultMaxBatches caps a drain that does not set its own bound. The
// bound exists so a drain against an inexhaustible queue always returns.
const DefaultMaxBatches = 10

// Options controls a drain run.
type Options struct {
	// BatchSize caps messages per receive (1..10).
	BatchSize int
	// DeleteAfter removes successfully processed messages from the queue.
	DeleteAfter bool
	// MaxBatches is the hard bound on receive calls; <=0 uses
	// DefaultMaxBatches.
	MaxBatches int
}

// Result aggregates per-message outcomes of a drain. A drain never aborts
// mid-batch on one failure.
type Result struct {
	TotalProcessed int `json:"total_processed"`
	Successful     int `json:"successful"`
	Errors         int `json:"errors"`
	Deleted        int `json:"deleted"`
}

// Drainer runs dead-letter messages through the same parser, dispatcher
// and reconciler the poller uses.
type Drainer struct {
	queue queue.Queue
	proc  *processor.Processor
	log   *logging.Logger
}

// New creates a Drainer for the given dead-letter queue.
func New(q queue.Queue, proc *processor.Processor, log *logging.Logger) *Drainer {
	return &Drainer{queue: q, proc: proc, log: log}
}

// Drain short-polls the dead-letter queue until a batch comes back empty
// or the batch bound is hit, running every message through the pipeline.
func (d *Drainer) Drain(ctx context.Context, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = 10
	}
	maxBatches := opts.MaxBatches
	if maxBatches <= 0 {
		maxBatches = DefaultMaxBatches
	}

	var result Result
	for batch := 0; batch < maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		msgs, err := d.queue.Receive(ctx, queue.ReceiveOptions{
			MaxMessages: batchSize,
			// Short poll: a drain is interactive, not a standing consumer.
			WaitTime:          0,
			VisibilityTimeout: 5 * time.Minute,
		})
		if err != nil {
			return result, fmt.Errorf("dead-letter receive failed: %w", err)
		}
		if len(msgs) == 0 {
			break
		}

		var succeeded []string
		for _, msg := range msgs {
			result.TotalProcessed++
			metrics.DLQDrained.Inc()

			if _, err := d.proc.ProcessMessage(ctx, msg.Body); err != nil {
				result.Errors++
				d.log.ErrorContext(ctx, "dead-letter message failed",
					"message_id", msg.ID, "error", err)
				continue
			}
			result.Successful++
			succeeded = append(succeeded, msg.ReceiptHandle)
		}

		if opts.DeleteAfter && len(succeeded) > 0 {
			deleted, err := d.queue.DeleteBatch(ctx, succeeded)
			result.Deleted += deleted
			metrics.DLQDeleted.Add(float64(deleted))
			if err != nil {
				d.log.WarnContext(ctx, "dead-letter batch delete failed",
					"deleted", deleted, "error", err)
			}
		}
	}

	d.log.InfoContext(ctx, "dead-letter drain finished",
		"total_processed", result.TotalProcessed,
		"successful", result.Successful,
		"errors", result.Errors,
		"deleted", result.Deleted)
	return result, nil
}

// Delete removes messages by receipt handle for externally orchestrated
// cleanup. Returns how many were actually deleted.
func (d *Drainer) Delete(ctx context.Context, receiptHandles []string) (int, error) {
	if len(receiptHandles) == 0 {
		return 0, nil
	}
	deleted, err := d.queue.DeleteBatch(ctx, receiptHandles)
	metrics.DLQDeleted.Add(float64(deleted))
	if err != nil {
		return deleted, fmt.Errorf("dead-letter delete failed: %w", err)
	}
	return deleted, nil
}
