package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	reconcileworker "github.com/wolfman30/clinic-booking/internal/worker/reconcile"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var errNothingToRun = errors.New("worker: neither outbox delivery nor reconciliation is configured")

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking worker", "env", cfg.Env, "events_sink", cfg.EventsSink)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, closeClients, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer closeClients()

	runners, err := buildRunners(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to initialize worker", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()
	logger.Info("worker stopped")
}

func connect(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (bootstrap.Clients, func(), error) {
	clients := bootstrap.Clients{
		AWS: func(ctx context.Context) (aws.Config, error) {
			return bootstrap.BuildAWSConfig(ctx, cfg)
		},
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return clients, func() {}, err
	}
	clients.Postgres = pool
	clients.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	return clients, func() {
		if clients.Redis != nil {
			_ = clients.Redis.Close()
		}
		if pool != nil {
			pool.Close()
		}
	}, nil
}

// buildRunners returns the loops this process should run until shutdown.
func buildRunners(ctx context.Context, cfg *appconfig.Config, clients bootstrap.Clients, logger *logging.Logger) ([]func(context.Context), error) {
	var runners []func(context.Context)

	if clients.Postgres != nil {
		sink, err := bootstrap.BuildEventSink(ctx, cfg, clients, logger)
		if err != nil {
			return nil, err
		}
		deliverer := events.NewDeliverer(events.NewOutboxStore(clients.Postgres), sink, logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval)
		runners = append(runners, deliverer.Start)
	} else {
		logger.Warn("DATABASE_URL not set; outbox delivery disabled")
	}

	if cfg.ReconcileEnabled {
		if cfg.SlotBackend == appconfig.SlotBackendMemory {
			logger.Warn("reconciliation needs a shared slot backend; skipping", "slot_backend", cfg.SlotBackend)
		} else {
			backend, err := bootstrap.BuildSlotBackend(ctx, cfg, clients)
			if err != nil {
				return nil, err
			}
			store := schedule.NewStore(backend, logger)
			coordinator := booking.NewCoordinator(store, nil, logger).WithTimeout(cfg.ReserveTimeout)
			repo := bootstrap.BuildAppointmentRepository(clients, logger)
			sweeper := reconcileworker.NewSweeper(store, coordinator, repo, logger).
				WithGrace(cfg.ReconcileGrace).
				WithInterval(cfg.ReconcileInterval)
			runners = append(runners, sweeper.Run)
		}
	}

	if len(runners) == 0 {
		return nil, errNothingToRun
	}
	return runners, nil
}
