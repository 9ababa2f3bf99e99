package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_ReceiveRespectsBatchSize(t *testing.T) {
	q := NewMemory("mem://test")
	for i := 0; i < 5; i++ {
		q.Push("msg")
	}

	msgs, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 3})
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestMemoryQueue_VisibilityHidesInFlight(t *testing.T) {
	q := NewMemory("mem://test")
	q.Push("msg")

	first, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 10, VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// In-flight message must not be redelivered.
	second, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 10})
	require.NoError(t, err)
	assert.Empty(t, second)

	// After the visibility timeout lapses it comes back.
	q.ExpireVisibility()
	third, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 10})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, first[0].ID, third[0].ID)
	assert.NotEqual(t, first[0].ReceiptHandle, third[0].ReceiptHandle)
	assert.Equal(t, "2", third[0].Attributes["ApproximateReceiveCount"])
}

func TestMemoryQueue_DeleteRemovesMessage(t *testing.T) {
	q := NewMemory("mem://test")
	q.Push("msg")

	msgs, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.Delete(context.Background(), msgs[0].ReceiptHandle))
	assert.Equal(t, 0, q.Len())

	assert.Error(t, q.Delete(context.Background(), msgs[0].ReceiptHandle))
}

func TestMemoryQueue_DeleteBatchCountsSuccesses(t *testing.T) {
	q := NewMemory("mem://test")
	q.Push("a")
	q.Push("b")

	msgs, err := q.Receive(context.Background(), ReceiveOptions{MaxMessages: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	handles := []string{msgs[0].ReceiptHandle, msgs[1].ReceiptHandle, "bogus"}
	deleted, err := q.DeleteBatch(context.Background(), handles)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 0, q.Len())
}
