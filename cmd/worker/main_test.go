package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestBuildRunnersWithoutDatabase(t *testing.T) {
	cfg := &appconfig.Config{SlotBackend: appconfig.SlotBackendMemory, EventsSink: "log"}
	_, err := buildRunners(context.Background(), cfg, bootstrap.Clients{}, logging.New("error"))
	assert.ErrorIs(t, err, errNothingToRun)

	cfg.ReconcileEnabled = true
	_, err = buildRunners(context.Background(), cfg, bootstrap.Clients{}, logging.New("error"))
	assert.ErrorIs(t, err, errNothingToRun, "memory backend cannot be reconciled out of process")
}

func TestBuildRunnersPropagatesBackendErrors(t *testing.T) {
	cfg := &appconfig.Config{SlotBackend: appconfig.SlotBackendRedis, ReconcileEnabled: true}
	_, err := buildRunners(context.Background(), cfg, bootstrap.Clients{}, logging.New("error"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errNothingToRun)
}

func TestConnectWithoutDatabase(t *testing.T) {
	clients, closeFn, err := connect(context.Background(), &appconfig.Config{}, logging.New("error"))
	require.NoError(t, err)
	defer closeFn()
	assert.Nil(t, clients.Postgres)
	assert.Nil(t, clients.Redis)
	assert.NotNil(t, clients.AWS)
}
