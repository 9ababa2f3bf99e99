// Package queue abstracts the message queue the pipeline consumes from.
// Implementations must support at-least-once delivery with receipt-handle
// deletes; redelivery after the visibility timeout is the retry mechanism.
package queue

import (
	"context"
	"time"
)

// Message is one received queue message. ReceiptHandle is only valid until
// the visibility timeout expires.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attributes    map[string]string
}

// ReceiveOptions controls a single receive call.
type ReceiveOptions struct {
	// MaxMessages caps the batch size (1..10 for SQS).
	MaxMessages int

	// WaitTime is the long-poll duration; zero means short poll.
	WaitTime time.Duration

	// VisibilityTimeout hides received messages from other consumers for
	// this long. Zero keeps the queue's configured default.
	VisibilityTimeout time.Duration
}

// Queue is the consumer contract shared by the poller and the dead-letter
// recovery path.
type Queue interface {
	// Receive fetches up to opts.MaxMessages messages. An empty slice with
	// a nil error means the queue had nothing to deliver.
	Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error)

	// Delete removes one message by receipt handle.
	Delete(ctx context.Context, receiptHandle string) error

	// DeleteBatch removes up to ten messages and returns how many were
	// actually deleted.
	DeleteBatch(ctx context.Context, receiptHandles []string) (int, error)

	// URL identifies the underlying queue.
	URL() string
}
