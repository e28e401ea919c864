package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/apptbook/platform/libs/auth"
	"github.com/apptbook/platform/libs/db"
	"github.com/apptbook/platform/libs/grpcx"
	"github.com/apptbook/platform/libs/httpx"
	"github.com/apptbook/platform/libs/kafkax"
	otelx "github.com/apptbook/platform/libs/otel"
	"github.com/apptbook/platform/libs/runtime"
	"github.com/apptbook/platform/services/booking-service/internal/availability"
	"github.com/apptbook/platform/services/booking-service/internal/booking"
	"github.com/apptbook/platform/services/booking-service/internal/config"
	"github.com/apptbook/platform/services/booking-service/internal/handlers"
	"github.com/apptbook/platform/services/booking-service/internal/metrics"
	"github.com/apptbook/platform/services/booking-service/internal/outbox"
	"github.com/apptbook/platform/services/booking-service/internal/status"
	"github.com/apptbook/platform/services/booking-service/internal/storage"
)

const (
	requestBodyLimit = 1 << 20
	requestTimeout   = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, gRPC health endpoint and outbox publisher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	otelShutdown, err := otelx.Setup(ctx, cfg.Otel)
	if err != nil {
		logger.Error().Err(err).Msg("otel setup failed")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	outboxRepo := outbox.NewRepository()
	catalog := storage.NewCachedCatalog(storage.NewCatalogRepository(pool), cfg.CatalogCacheTTL)
	appointments := storage.NewAppointmentRepository(pool, outboxRepo)

	detector := availability.NewConflictDetector(appointments, cfg.ScheduleBlocksEnabled)
	avail := availability.NewService(catalog, detector, availability.Options{
		Granularity: cfg.SlotGranularity(),
		Location:    loc,
	}, m, logger)
	orchestrator := booking.NewOrchestrator(catalog, avail, appointments, cfg.Policy(), loc, m, logger)
	updater := status.NewService(appointments, status.NewMachine(cfg.StrictStatusTransitions), m, logger)

	brokers := kafkax.SplitBrokers(cfg.KafkaBrokers)
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	root := runtime.NewBaseMux(logger, checks...)
	root.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	handlers.New(avail, orchestrator, updater, logger).Register(api)
	root.Handle("/api/", apiHandler(cfg, api, logger))

	httpSrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(httpx.Chain(root,
			httpx.WithRequestID,
			httpx.WithAccessLog(logger),
			httpx.WithRecover(logger),
		), cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Msg("http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		g.Go(func() error {
			logger.Info().Str("addr", lis.Addr().String()).Msg("grpc server starting")
			return grpcSrv.Serve(lis)
		})
	}
	if len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer writer.Close()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, m, logger, outbox.PublisherConfig{
			PollEvery: cfg.OutboxPollInterval,
			BatchSize: cfg.OutboxBatchSize,
		})
		g.Go(func() error { return publisher.Run(gctx) })
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	g.Go(func() error {
		<-gctx.Done()
		health.Shutdown()
		grpcSrv.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http server shutdown error")
		}
		return nil
	})

	err = g.Wait()
	logger.Info().Msg("booking-service stopped")
	return err
}

// apiHandler wraps the API routes with body and time limits, a rate limiter
// and bearer token verification.
func apiHandler(cfg config.Config, api http.Handler, logger zerolog.Logger) http.Handler {
	chain := []httpx.Middleware{
		httpx.WithBodyLimit(requestBodyLimit),
		httpx.WithTimeout(requestTimeout),
		rateLimiter(cfg, logger),
	}
	if cfg.AuthDisabled {
		logger.Warn().Msg("AUTH_DISABLED set; API requests are not authenticated")
	} else {
		chain = append(chain, auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Middleware)
	}
	return httpx.Chain(api, chain...)
}

func rateLimiter(cfg config.Config, logger zerolog.Logger) httpx.Middleware {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err == nil {
			rdb := redis.NewClient(opts)
			return httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "booking:ratelimit").Middleware(logger, true)
		}
		logger.Error().Err(err).Msg("invalid REDIS_URL; using in-process rate limiter")
	}
	return httpx.NewRateLimiter(cfg.RateLimitPerMinute).Middleware()
}
