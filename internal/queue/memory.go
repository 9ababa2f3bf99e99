package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-memory Queue for tests and local development. It
// mimics visibility-timeout semantics: received messages become invisible
// until deleted or until the timeout lapses.
type MemoryQueue struct {
	mu       sync.Mutex
	url      string
	messages []*memoryMessage
	now      func() time.Time
}

type memoryMessage struct {
	id             string
	body           string
	receiptHandle  string
	invisibleUntil time.Time
	receiveCount   int
}

// NewMemory creates an empty in-memory queue.
func NewMemory(url string) *MemoryQueue {
	return &MemoryQueue{url: url, now: time.Now}
}

// Push enqueues a message body.
func (q *MemoryQueue) Push(body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, &memoryMessage{
		id:   uuid.New().String(),
		body: body,
	})
}

// Len reports how many messages remain, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (q *MemoryQueue) URL() string { return q.url }

func (q *MemoryQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	maxMessages := opts.MaxMessages
	if maxMessages < 1 {
		maxMessages = 1
	}
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}

	now := q.now()
	var out []Message
	for _, m := range q.messages {
		if len(out) >= maxMessages {
			break
		}
		if m.invisibleUntil.After(now) {
			continue
		}
		m.receiptHandle = uuid.New().String()
		m.invisibleUntil = now.Add(visibility)
		m.receiveCount++
		out = append(out, Message{
			ID:            m.id,
			Body:          m.body,
			ReceiptHandle: m.receiptHandle,
			Attributes: map[string]string{
				"ApproximateReceiveCount": fmt.Sprintf("%d", m.receiveCount),
			},
		})
	}
	return out, nil
}

func (q *MemoryQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.receiptHandle == receiptHandle && m.receiptHandle != "" {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("receipt handle not found")
}

func (q *MemoryQueue) DeleteBatch(ctx context.Context, receiptHandles []string) (int, error) {
	deleted := 0
	for _, handle := range receiptHandles {
		if err := q.Delete(ctx, handle); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// ExpireVisibility makes all in-flight messages receivable again. Used by
// tests to simulate the visibility timeout lapsing.
func (q *MemoryQueue) ExpireVisibility() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		m.invisibleUntil = time.Time{}
	}
}
