package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/fittrack/internal"
	"github.com/2beens/fittrack/internal/backup"
	"github.com/2beens/fittrack/internal/cascade"
	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/logging"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	backend := flag.String("backend", "", "override the configured backend [auto | bridge | embedded | local]")
	exportPath := flag.String("export", "", "export all collections to this file and exit")
	importPath := flag.String("import", "", "replace the collections with the ones in this export file and exit")
	reset := flag.Bool("reset", false, "remove all training, metrics and plan data and exit")
	repairOrphans := flag.Bool("repair-orphans", false, "fix plan items and training records left unlinked and exit")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}
	if *backend != "" {
		cfg.Backend = *backend
	}

	closeLogs := logging.Setup(logging.LoggerSetupParams{
		Process:       "fittrack",
		LogFileName:   cfg.LogsPath,
		LogToStdout:   cfg.LogToStdout,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
		Environment:   cfg.Environment,
		SentryEnabled: cfg.SentryEnabled,
		SentryDSN:     os.Getenv("SENTRY_DSN"),
	})
	defer closeLogs()

	bridgeSecret := os.Getenv("FITTRACK_BRIDGE_SECRET")
	if bridgeSecret == "" && cfg.BridgeURL != "" {
		log.Errorf("bridge secret not set. use FITTRACK_BRIDGE_SECRET")
	}

	redisPassword := os.Getenv("FITTRACK_REDIS_PASS")
	if redisPassword == "" && cfg.LocalUseRedis {
		log.Errorf("redis password not set. use FITTRACK_REDIS_PASS")
	}

	honeycombEnabled := os.Getenv("HONEYCOMB_ENABLED") == "true"
	if honeycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	} else {
		log.Debugln("honeycomb tracing disabled")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := internal.NewServer(ctx, internal.NewServerParams{
		Config:                  cfg,
		BridgeSecret:            bridgeSecret,
		RedisPassword:           redisPassword,
		HoneycombTracingEnabled: honeycombEnabled,
	})
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	var oneShot func() error
	switch {
	case *exportPath != "":
		oneShot = func() error { return exportTo(ctx, server.Backup(), *exportPath) }
	case *importPath != "":
		oneShot = func() error { return importFrom(ctx, server.Backup(), *importPath) }
	case *reset:
		oneShot = func() error {
			removed, err := server.Backup().Reset(ctx)
			log.Infof("removed documents: %v", removed)
			return err
		}
	case *repairOrphans:
		oneShot = func() error { return repair(ctx, server.Cascade()) }
	}

	if oneShot != nil {
		err := oneShot()
		server.GracefulShutdown()
		if err != nil {
			log.Errorf("%s", err)
			closeLogs()
			os.Exit(1)
		}
		log.Infoln("done")
		return
	}

	server.Serve(ctx)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	server.GracefulShutdown()
}

func repair(ctx context.Context, manager *cascade.Manager) error {
	report, err := manager.FindOrphans(ctx)
	if err != nil {
		return err
	}
	if report.Empty() {
		log.Infoln("no orphans found")
		return nil
	}
	log.Infof("repairing %d plan items and %d training records",
		len(report.DanglingPlanItems), len(report.UnlinkedRecords))
	return manager.Repair(ctx, report)
}

func exportTo(ctx context.Context, service *backup.Service, path string) error {
	bundle, err := service.Export(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("close export file: %s", err)
		}
	}()
	if err := bundle.Write(f); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	for coll, docs := range bundle.Collections {
		log.Infof("exported %d documents from [%s]", len(docs), coll)
	}
	return nil
}

func importFrom(ctx context.Context, service *backup.Service, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("close import file: %s", err)
		}
	}()
	bundle, err := backup.ReadBundle(f)
	if err != nil {
		return err
	}
	imported, err := service.Import(ctx, bundle)
	log.Infof("imported documents: %v", imported)
	return err
}
