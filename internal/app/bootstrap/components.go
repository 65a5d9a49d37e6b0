package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/directory"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/triage"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Clients are the shared connections a binary opened at startup. Any of
// them may be nil when not configured.
type Clients struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	// AWS loads the SDK config on first use.
	AWS func(ctx context.Context) (aws.Config, error)
}

func (c Clients) awsConfig(ctx context.Context) (aws.Config, error) {
	if c.AWS == nil {
		return aws.Config{}, fmt.Errorf("bootstrap: aws config unavailable")
	}
	return c.AWS(ctx)
}

// BuildSlotBackend selects the slot storage named by SLOT_BACKEND.
func BuildSlotBackend(ctx context.Context, cfg *appconfig.Config, clients Clients) (schedule.Backend, error) {
	switch cfg.SlotBackend {
	case appconfig.SlotBackendMemory:
		return schedule.NewMemoryBackend(), nil
	case appconfig.SlotBackendPostgres:
		if clients.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: SLOT_BACKEND=postgres requires DATABASE_URL")
		}
		return schedule.NewPostgresBackend(clients.Postgres, cfg.SlotsTable), nil
	case appconfig.SlotBackendRedis:
		if clients.Redis == nil {
			return nil, fmt.Errorf("bootstrap: SLOT_BACKEND=redis requires a reachable REDIS_ADDR")
		}
		return schedule.NewRedisBackend(clients.Redis), nil
	case appconfig.SlotBackendDynamoDB:
		awsCfg, err := clients.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return schedule.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), cfg.SlotsTable), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown SLOT_BACKEND %q", cfg.SlotBackend)
}

// BuildAppointmentRepository persists appointments in Postgres when a pool
// is available, in process otherwise.
func BuildAppointmentRepository(clients Clients, logger *logging.Logger) appointments.Repository {
	if clients.Postgres != nil {
		return appointments.NewPostgresRepository(clients.Postgres)
	}
	if logger != nil {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
	}
	return appointments.NewInMemoryRepository()
}

// BuildDirectory returns the profile lookup used for booking snapshots.
func BuildDirectory(clients Clients) directory.Directory {
	if clients.Redis != nil {
		return directory.NewRedisStore(clients.Redis)
	}
	return directory.NewMemoryDirectory()
}

// BuildKnowledgeBase loads KNOWLEDGE_BASE_PATH or the embedded default.
func BuildKnowledgeBase(cfg *appconfig.Config) (*triage.KnowledgeBase, error) {
	if cfg.KnowledgeBasePath != "" {
		return triage.LoadKnowledgeBase(cfg.KnowledgeBasePath)
	}
	return triage.DefaultKnowledgeBase()
}

// BuildEventSink returns the delivery handler named by EVENTS_SINK.
func BuildEventSink(ctx context.Context, cfg *appconfig.Config, clients Clients, logger *logging.Logger) (events.DeliveryHandler, error) {
	switch cfg.EventsSink {
	case "", "log":
		return events.NewLogHandler(logger), nil
	case "redis":
		if clients.Redis == nil {
			return nil, fmt.Errorf("bootstrap: EVENTS_SINK=redis requires a reachable REDIS_ADDR")
		}
		return events.NewRedisStreamHandler(clients.Redis, cfg.EventsStream), nil
	case "sqs":
		if cfg.EventsQueueURL == "" {
			return nil, fmt.Errorf("bootstrap: EVENTS_SINK=sqs requires EVENTS_QUEUE_URL")
		}
		awsCfg, err := clients.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return events.NewSQSHandler(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL), nil
	}
	return nil, fmt.Errorf("bootstrap: unknown EVENTS_SINK %q", cfg.EventsSink)
}

// BuildPublisher records lifecycle events in the outbox when Postgres is
// available. Without it events go straight to the sink.
func BuildPublisher(ctx context.Context, cfg *appconfig.Config, clients Clients, logger *logging.Logger) (events.Publisher, error) {
	if clients.Postgres != nil {
		return events.NewOutboxStore(clients.Postgres), nil
	}
	sink, err := BuildEventSink(ctx, cfg, clients, logger)
	if err != nil {
		return nil, err
	}
	return events.NewDirectPublisher(sink), nil
}
