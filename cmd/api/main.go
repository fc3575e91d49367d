package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/bitecare-clinic/internal/api/router"
	"github.com/wolfman30/bitecare-clinic/internal/app/bootstrap"
	"github.com/wolfman30/bitecare-clinic/internal/bookings"
	appconfig "github.com/wolfman30/bitecare-clinic/internal/config"
	"github.com/wolfman30/bitecare-clinic/internal/events"
	"github.com/wolfman30/bitecare-clinic/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/bitecare-clinic/internal/http/middleware"
	"github.com/wolfman30/bitecare-clinic/internal/observability/metrics"
	"github.com/wolfman30/bitecare-clinic/pkg/logging"
)

const (
	eventBusBuffer  = 64
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Default().Warn("failed to load .env", "error", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bitecare-clinic API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("failed to close stores", "error", err)
		}
	}()

	metricsHandler, bookingMetrics := setupBookingMetrics()
	bus := events.NewBus(eventBusBuffer, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var relay *events.RedisRelay
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		relay = events.NewRedisRelay(redisClient, cfg.EventsRedisChannel, bus, logger)
	}

	coord := bookings.NewCoordinator(stores.Slots, stores.Bookings, logger).
		WithPublisher(buildPublisher(bus, relay, stores.Outbox)).
		WithMetrics(bookingMetrics).
		WithAudit(stores.AuditRecorder()).
		WithAdmissionTimeout(cfg.AdmissionTimeout)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	routerCfg := &router.Config{
		Logger:             logger,
		BookingsHandler:    bookings.NewHandler(coord, logger),
		AdminSlots:         handlers.NewAdminSlotsHandler(coord, logger),
		EventStream:        events.NewStreamHandler(bus, logger).WithAllowedOrigins(cfg.CORSAllowedOrigins),
		MetricsHandler:     metricsHandler,
		RateLimiter:        limiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthCheck:        healthCheck(stores, redisClient),
	}
	if stores.Audit != nil {
		routerCfg.AdminAudit = handlers.NewAdminAuditHandler(stores.Audit, logger)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	// Websocket connections are hijacked, so only header and idle timeouts apply.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		limiter.Run(gctx, time.Minute, 10*time.Minute)
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis relay stopped", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func setupBookingMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), bookingMetrics
}

// buildPublisher fans events out to the local bus, the other instances and the
// durable outbox, skipping whichever of the latter two is not configured.
func buildPublisher(bus *events.Bus, relay *events.RedisRelay, outbox *events.OutboxStore) events.Publisher {
	publishers := []events.Publisher{bus}
	if relay != nil {
		publishers = append(publishers, relay)
	}
	if outbox != nil {
		publishers = append(publishers, outbox)
	}
	return events.Fanout(publishers...)
}

func healthCheck(stores *bootstrap.Stores, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := stores.Ping(ctx); err != nil {
			return err
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	}
}
