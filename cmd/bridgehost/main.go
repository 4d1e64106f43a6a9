package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/db"
	"github.com/2beens/fittrack/internal/docstore/bridge"
	"github.com/2beens/fittrack/internal/logging"
	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
)

func main() {
	fmt.Println("starting bridge host ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		Process:       "bridgehost",
		LogFileName:   cfg.LogsPath,
		LogToStdout:   cfg.LogToStdout,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
		Environment:   cfg.Environment,
		SentryEnabled: cfg.SentryEnabled,
		SentryDSN:     os.Getenv("SENTRY_DSN"),
	})
	defer closeLogs()

	secretHash := os.Getenv("FITTRACK_BRIDGE_SECRET_HASH")
	if secretHash == "" {
		log.Fatalln("bridge secret hash not set. use FITTRACK_BRIDGE_SECRET_HASH")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	otelShutdown, err := tracing.HoneycombSetup(honeycombEnabled, "fittrack-bridgehost")
	if err != nil {
		log.Fatalf("honeycomb setup: %s", err)
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBPassword:     os.Getenv("FITTRACK_POSTGRES_PASS"),
		TracingEnabled: honeycombEnabled,
	})
	if err != nil {
		log.Fatalf("new db pool: %s", err)
	}
	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	repo := bridge.NewPsqlRepo(dbPool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("%s", err)
	}

	promRegistry := metrics.SetupPrometheus(db.PoolCollector(dbPool, cfg.PostgresDBName))
	metricsManager := metrics.NewManager("fittrack", "bridge", promRegistry)

	var (
		rdb         *redis.Client
		rateLimiter middleware.RequestRateLimiter
	)
	if cfg.BridgeRateLimitPerMin > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: os.Getenv("FITTRACK_REDIS_PASS"),
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		}
		rateLimiter = redis_rate.NewLimiter(rdb)
	}

	host := bridge.NewHost(repo, bridge.NewHostParams{
		Config:         cfg,
		SecretHash:     secretHash,
		RateLimiter:    rateLimiter,
		MetricsManager: metricsManager,
		PromRegistry:   promRegistry,
	})
	if _, err := host.Serve(cfg.BridgeHost, cfg.BridgePort); err != nil {
		log.Fatalf("bridge host serve: %s", err)
	}

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	host.GracefulShutdown()

	otelShutdown()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}
	dbPool.Close()
	log.Infoln("bridge host stopped")
}
