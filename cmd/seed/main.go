package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/directory"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Usage: seed [fixture.json]
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	path := "testdata/seed.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	file, err := os.Open(path)
	if err != nil {
		logger.Error("failed to open fixture", "path", path, "error", err)
		os.Exit(1)
	}
	fixture, err := parseSeedFile(file)
	_ = file.Close()
	if err != nil {
		logger.Error("failed to parse fixture", "path", path, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	clients := bootstrap.Clients{
		Postgres: pool,
		Redis:    bootstrap.BuildRedisClient(ctx, cfg, logger, true),
		AWS: func(ctx context.Context) (aws.Config, error) {
			return bootstrap.BuildAWSConfig(ctx, cfg)
		},
	}
	if clients.Redis != nil {
		defer func() { _ = clients.Redis.Close() }()
	}

	if cfg.SlotBackend == appconfig.SlotBackendMemory {
		logger.Warn("SLOT_BACKEND=memory; seeded slots vanish when this process exits")
	}
	backend, err := bootstrap.BuildSlotBackend(ctx, cfg, clients)
	if err != nil {
		logger.Error("failed to build slot backend", "error", err)
		os.Exit(1)
	}

	var profiles profileWriter
	if clients.Redis != nil {
		profiles = directory.NewRedisStore(clients.Redis)
	}

	res, err := seed(ctx, fixture, schedule.NewStore(backend, logger), profiles, logger)
	if err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d doctors, %d patients, %d slots (%d already present)\n",
		res.Doctors, res.Patients, res.Slots, res.Skipped)
}
