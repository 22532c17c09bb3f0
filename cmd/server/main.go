package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/touchlog/touchlog/config"
	appmodel "github.com/touchlog/touchlog/internal/app/model"
	apprepository "github.com/touchlog/touchlog/internal/app/repository"
	appserver "github.com/touchlog/touchlog/internal/app/server"
	appservice "github.com/touchlog/touchlog/internal/app/service"
	"github.com/touchlog/touchlog/internal/infra/logger"
	infraNATS "github.com/touchlog/touchlog/internal/infra/nats"
	infraPostgres "github.com/touchlog/touchlog/internal/infra/postgres"
	infraPrometheus "github.com/touchlog/touchlog/internal/infra/prometheus"
	infraRedis "github.com/touchlog/touchlog/internal/infra/redis"
	"github.com/touchlog/touchlog/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_user", cfg.Postgres.User),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Bool("ip_hash_secret_set", cfg.Telemetry.IPHashSecret != ""),
		zap.Bool("legacy_ip_salt_set", cfg.Telemetry.LegacyIPSalt != ""),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	// Only the tags table is migrated here. The event tables are managed
	// by rolling external migrations and may lag behind the code; the
	// recording path adapts at insert time instead of assuming the full
	// column set exists.
	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Tag{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	tagRepo := apprepository.NewTagRepository(gormDB)
	eventRepo := apprepository.NewEventRepository(gormDB)

	hasher := telemetry.NewIPHasher(cfg.Telemetry.IPHashSecret, cfg.Telemetry.LegacyIPSalt, log)
	geo := telemetry.NewIPAPIResolver(cfg.Telemetry.GeoBaseURL, parseDuration(cfg.Telemetry.GeoTimeout), log)

	recorder := appservice.NewEventRecorder(log, eventRepo, parseDuration(cfg.Telemetry.DedupWindow))
	recorder.SeedReturningFilter(ctx)

	publisher := appservice.NewEventPublisher(js)
	consumer := appservice.NewEventConsumer(js, log, recorder)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start event consumer", zap.Error(err))
	}

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Postgres:  pool,
		Redis:     redisClient,
		Tags:      tagRepo,
		Events:    eventRepo,
		Publisher: publisher,
		Recorder:  recorder,
		Geo:       geo,
		Hasher:    hasher,
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := server.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}

func parseDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
