package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/docstore/embedded"
	"github.com/2beens/fittrack/internal/logging"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/pkg"
)

func main() {
	fmt.Println("starting embedded document host ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		Process:       "dochost",
		LogFileName:   cfg.LogsPath,
		LogToStdout:   cfg.LogToStdout,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
		Environment:   cfg.Environment,
		SentryEnabled: cfg.SentryEnabled,
		SentryDSN:     os.Getenv("SENTRY_DSN"),
	})
	defer closeLogs()

	if cfg.EmbeddedSocketPath == "" || cfg.EmbeddedDataDir == "" {
		log.Fatalln("embedded_socket_path and embedded_data_dir must be set")
	}
	if err := pkg.EnsureDir(cfg.EmbeddedDataDir); err != nil {
		log.Fatalf("embedded data dir: %s", err)
	}

	// a socket file left behind by a previous run blocks the bind
	if exists, err := pkg.PathExists(cfg.EmbeddedSocketPath, false); err == nil && exists {
		log.Warnf("removing stale socket file [%s]", cfg.EmbeddedSocketPath)
		if err := os.Remove(cfg.EmbeddedSocketPath); err != nil {
			log.Fatalf("remove stale socket: %s", err)
		}
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("fittrack", "dochost", promRegistry)

	host, err := embedded.NewHost(embedded.HostConfig{
		DataDir:    cfg.EmbeddedDataDir,
		SyncWrites: true,
	}, metricsManager)
	if err != nil {
		log.Fatalf("new embedded host: %s", err)
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	if _, err := host.Listen(ctx, cfg.EmbeddedSocketPath); err != nil {
		log.Fatalf("embedded host listen: %s", err)
	}

	var metricsHttpServer *http.Server
	if cfg.PrometheusMetricsPort != "" {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		metricsAddr := net.JoinHostPort(cfg.PrometheusMetricsHost, cfg.PrometheusMetricsPort)
		metricsHttpServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Debugf(" > metrics listening on: [%s]", metricsAddr)
			err := metricsHttpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("metrics service, listen and serve: %s", err)
			}
		}()
	}
	metricsManager.GaugeLifeSignal.Set(1)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, closing the collections ...", receivedSig)
	metricsManager.GaugeLifeSignal.Set(0)
	cancel()

	if err := host.Close(); err != nil {
		log.Errorf("close embedded host: %s", err)
	}

	if metricsHttpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsHttpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown metrics server: %s", err)
		}
	}

	sentry.Flush(2 * time.Second)
	log.Infoln("embedded host stopped")
}
