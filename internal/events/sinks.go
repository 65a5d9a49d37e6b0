package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// LogHandler writes each event to the structured log.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.logger.Info("appointment event",
		"event_id", entry.ID,
		"type", entry.Type,
		"aggregate", entry.Aggregate,
		"payload", string(entry.Payload),
	)
	return nil
}

// RedisStreamHandler appends events to a Redis stream.
type RedisStreamHandler struct {
	redis  *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamHandler(client *redis.Client, stream string) *RedisStreamHandler {
	if client == nil {
		panic("events: redis client required")
	}
	if stream == "" {
		stream = "clinic:appointment-events"
	}
	return &RedisStreamHandler{redis: client, stream: stream, maxLen: 100000}
}

func (h *RedisStreamHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	err := h.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":  entry.ID.String(),
			"type":      entry.Type,
			"aggregate": entry.Aggregate,
			"envelope":  string(entry.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("events: xadd %s: %w", h.stream, err)
	}
	return nil
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSHandler sends each envelope as one SQS message.
type SQSHandler struct {
	client   sqsAPI
	queueURL string
}

func NewSQSHandler(client sqsAPI, queueURL string) *SQSHandler {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSHandler{client: client, queueURL: queueURL}
}

func (h *SQSHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := h.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}
