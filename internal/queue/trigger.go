// Package queue provides the SQS producer that hands final send failures to
// an operator-facing queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"greetbot/internal/config"
	"greetbot/internal/dispatch"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ dispatch.FailureSink = (*FailurePublisher)(nil)

// FailurePublisher implements dispatch.FailureSink. Each failure becomes one
// JSON message carrying occasion_kind and run_id message attributes so
// consumers can filter without parsing the body.
type FailurePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewFailurePublisher creates a FailurePublisher for the queue configured in
// awsCfg.FailureQueueURL.
func NewFailurePublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *FailurePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailurePublisher{
		client:   client,
		queueURL: awsCfg.FailureQueueURL,
		logger:   logger,
	}
}

// PublishFailure serializes f and sends it to the failure queue.
func (p *FailurePublisher) PublishFailure(ctx context.Context, f dispatch.FailedSend) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal FailedSend: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		"occasion_kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(f.OccasionKind)),
		},
	}
	if f.RunID != "" {
		attrs["run_id"] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(f.RunID),
		}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send FailedSend to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "send failure published",
		"queue_url", p.queueURL,
		"run_id", f.RunID,
		"occasion_key", f.OccasionKey,
		"attempts", f.Attempts,
	)
	return nil
}
