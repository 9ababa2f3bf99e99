package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// sqsBatchLimit is the provider's hard cap per receive/delete-batch call.
const sqsBatchLimit = 10

// SQSQueue implements Queue against Amazon SQS.
type SQSQueue struct {
	client *sqs.Client
	url    string
}

// SQSOptions configures the SQS client.
type SQSOptions struct {
	Region string
	// Endpoint overrides the service endpoint, for localstack and tests.
	Endpoint string
}

// NewSQS builds an SQS-backed queue for the given queue URL.
func NewSQS(ctx context.Context, queueURL string, opts SQSOptions) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &SQSQueue{client: client, url: queueURL}, nil
}

// NewSQSWithClient wraps an existing client. Used by tests.
func NewSQSWithClient(client *sqs.Client, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, url: queueURL}
}

func (q *SQSQueue) URL() string { return q.url }

func (q *SQSQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	maxMessages := opts.MaxMessages
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > sqsBatchLimit {
		maxMessages = sqsBatchLimit
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(opts.WaitTime.Seconds()),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	}
	if opts.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(opts.VisibilityTimeout.Seconds())
	}

	out, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Attributes:    m.Attributes,
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (q *SQSQueue) DeleteBatch(ctx context.Context, receiptHandles []string) (int, error) {
	deleted := 0
	for start := 0; start < len(receiptHandles); start += sqsBatchLimit {
		end := start + sqsBatchLimit
		if end > len(receiptHandles) {
			end = len(receiptHandles)
		}

		entries := make([]types.DeleteMessageBatchRequestEntry, 0, end-start)
		for _, handle := range receiptHandles[start:end] {
			entries = append(entries, types.DeleteMessageBatchRequestEntry{
				Id:            aws.String(uuid.New().String()),
				ReceiptHandle: aws.String(handle),
			})
		}

		out, err := q.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(q.url),
			Entries:  entries,
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to batch delete messages: %w", err)
		}
		deleted += len(out.Successful)
	}
	return deleted, nil
}
