package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/booking"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/internal/triage"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"slot_backend", cfg.SlotBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize API", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go evictRateLimits(ctx, app.limiter, time.Minute)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler http.Handler
	limiter *httpmiddleware.RateLimiter
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	clients, err := connectClients(ctx, cfg, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	backend, err := bootstrap.BuildSlotBackend(ctx, cfg, clients)
	if err != nil {
		a.Close()
		return nil, err
	}
	kb, err := bootstrap.BuildKnowledgeBase(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	publisher, err := bootstrap.BuildPublisher(ctx, cfg, clients, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	metricsHandler, bookingMetrics := setupMetrics()

	store := schedule.NewStore(backend, logger)
	coordinator := booking.NewCoordinator(store, bookingMetrics, logger).WithTimeout(cfg.ReserveTimeout)
	ledger := appointments.NewLedger(bootstrap.BuildAppointmentRepository(clients, logger), coordinator, logger)
	classifier := triage.NewClassifier(kb)
	service := booking.NewService(coordinator, ledger, classifier, logger).
		WithDirectory(bootstrap.BuildDirectory(clients)).
		WithEvents(publisher).
		WithMetrics(bookingMetrics)

	if cfg.AuthJWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set; authenticated routes will reject every token")
	}
	a.limiter = httpmiddleware.NewRateLimiter(cfg.WriteRateLimit, cfg.WriteRateBurst)

	a.handler = router.New(&router.Config{
		Logger:             logger,
		SlotHandler:        schedule.NewHandler(store, logger),
		BookingHandler:     booking.NewHandler(service, coordinator, logger),
		TriageHandler:      triage.NewHandler(classifier, bookingMetrics, logger),
		MetricsHandler:     metricsHandler,
		AuthSecret:         cfg.AuthJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WriteLimiter:       a.limiter,
		HealthChecks:       healthChecks(clients),
	})
	logger.Info("api ready", "knowledge_base", kb.Version(), "slot_backend", backend.Name())
	return a, nil
}

func connectClients(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, a *app) (bootstrap.Clients, error) {
	var clients bootstrap.Clients

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return clients, err
	}
	if pool != nil {
		clients.Postgres = pool
		a.closers = append(a.closers, pool.Close)
	}

	if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		clients.Redis = redisClient
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	clients.AWS = func(ctx context.Context) (aws.Config, error) {
		return bootstrap.BuildAWSConfig(ctx, cfg)
	}
	return clients, nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

func healthChecks(clients bootstrap.Clients) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if clients.Postgres != nil {
		checks["postgres"] = clients.Postgres.Ping
	}
	if clients.Redis != nil {
		redisClient := clients.Redis
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func evictRateLimits(ctx context.Context, limiter *httpmiddleware.RateLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Evict(now.Add(-10 * time.Minute))
		}
	}
}
