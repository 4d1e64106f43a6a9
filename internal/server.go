package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fittrack/internal/analytics"
	"github.com/2beens/fittrack/internal/backup"
	"github.com/2beens/fittrack/internal/cascade"
	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/bridge"
	"github.com/2beens/fittrack/internal/docstore/embedded"
	"github.com/2beens/fittrack/internal/docstore/local"
	"github.com/2beens/fittrack/internal/fetch"
	"github.com/2beens/fittrack/internal/settings"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
)

const redisKeyPrefix = "fittrack"

// Server is the fittrack application process: one selected store,
// the fetch controller keeping the collections in memory, and the
// services mutating them.
type Server struct {
	config *config.Config

	store       docstore.Store
	controller  *fetch.Controller
	cascade     *cascade.Manager
	settings    *settings.Service
	backup      *backup.Service
	redisClient *redis.Client

	// telemetry
	metricsManager    *metrics.Manager
	promRegistry      *prometheus.Registry
	metricsHttpServer *http.Server
	otelShutdown      func()

	unsubscribe func()
	wg          sync.WaitGroup
}

type NewServerParams struct {
	Config                  *config.Config
	BridgeSecret            string
	RedisPassword           string
	HoneycombTracingEnabled bool
	// Candidates overrides the stores built from the config
	Candidates []docstore.Store
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("fittrack", "app", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fittrack")
	if err != nil {
		return nil, fmt.Errorf("honeycomb setup: %w", err)
	}

	s := &Server{
		config:         params.Config,
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	candidates := params.Candidates
	if len(candidates) == 0 {
		candidates, err = s.backendCandidates(ctx, params)
		if err != nil {
			otelShutdown()
			return nil, err
		}
	}

	selected, err := docstore.Select(ctx, candidates...)
	if err != nil {
		s.closeRedis()
		otelShutdown()
		return nil, fmt.Errorf("select backend: %w", err)
	}

	s.store = docstore.NewInstrumentedStore(selected, metricsManager)
	s.controller = fetch.NewController(s.store, params.Config.PollInterval(), metricsManager)
	s.cascade = cascade.NewManager(s.store, s.controller, metricsManager)
	s.settings = settings.NewService(s.store)
	s.backup = backup.NewService(s.store, s.controller)

	return s, nil
}

// backendCandidates lists the stores to probe, in preference order.
func (s *Server) backendCandidates(ctx context.Context, params NewServerParams) ([]docstore.Store, error) {
	cfg := params.Config

	var candidates []docstore.Store
	backend := strings.ToLower(cfg.Backend)

	if (backend == config.BackendAuto || backend == config.BackendBridge) && cfg.BridgeURL != "" {
		candidates = append(candidates, bridge.NewClient(cfg.BridgeURL, params.BridgeSecret, nil))
	}
	if (backend == config.BackendAuto || backend == config.BackendEmbedded) && cfg.EmbeddedSocketPath != "" {
		candidates = append(candidates, embedded.NewClient(cfg.EmbeddedSocketPath))
	}
	if backend == config.BackendAuto || backend == config.BackendLocal {
		localStore, err := s.localStore(ctx, params)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, localStore)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no backend configured for [%s]", docstore.ErrBackendUnavailable, cfg.Backend)
	}
	return candidates, nil
}

func (s *Server) localStore(ctx context.Context, params NewServerParams) (*local.Store, error) {
	cfg := params.Config
	if !cfg.LocalUseRedis {
		area, err := local.NewFileArea(cfg.LocalDataDir)
		if err != nil {
			return nil, fmt.Errorf("local file area: %w", err)
		}
		return local.NewStore(area), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
		DB:       0,
	})
	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}
	s.redisClient = rdb

	return local.NewStore(local.NewRedisArea(rdb, redisKeyPrefix)), nil
}

func (s *Server) Store() docstore.Store          { return s.store }
func (s *Server) Controller() *fetch.Controller { return s.controller }
func (s *Server) Cascade() *cascade.Manager     { return s.cascade }
func (s *Server) Settings() *settings.Service   { return s.settings }
func (s *Server) Backup() *backup.Service       { return s.backup }

// Serve starts polling, the dashboard summary logger and the metrics server.
func (s *Server) Serve(ctx context.Context) {
	changes, unsubscribe := s.controller.Subscribe(16)
	s.unsubscribe = unsubscribe

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logSummaries(ctx, changes)
	}()

	if err := s.controller.Start(ctx); err != nil {
		log.Errorf("start fetch controller: %s", err)
	}

	if report, err := s.cascade.FindOrphans(ctx); err != nil {
		log.Warnf("orphan check: %s", err)
	} else if !report.Empty() {
		log.Warnf("found %d dangling plan items and %d unlinked training records, run with -repair-orphans to fix",
			len(report.DanglingPlanItems), len(report.UnlinkedRecords))
	}

	if s.config.PrometheusMetricsPort != "" {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", promhttp.HandlerFor(
			s.promRegistry,
			promhttp.HandlerOpts{},
		))
		metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
		s.metricsHttpServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Debugf(" > metrics listening on: [%s]", metricsAddr)
			err := s.metricsHttpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("metrics service, listen and serve: %s", err)
			}
		}()
	}

	s.metricsManager.GaugeLifeSignal.Set(1)
}

// logSummaries logs the dashboard figures every time a collection changes.
func (s *Server) logSummaries(ctx context.Context, changes <-chan fetch.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			log.Debugf("collection [%s] refreshed: %d documents", change.Collection, change.Docs)
			summary := s.Summary(ctx)
			log.Infof(
				"dashboard: %d weightlifting sessions, %d sets, bmi %s (%s), shoulder/waist %s (%s), %d pending plan items",
				summary.WeightliftingSessions,
				summary.TotalSets,
				formatOptional(summary.BMI),
				summary.BMICategory.Label,
				formatOptional(summary.ShoulderWaistRatio),
				summary.RatioCategory.Label,
				summary.PendingPlanItems,
			)
		}
	}
}

// Summary computes the dashboard from the cached collections.
func (s *Server) Summary(ctx context.Context) analytics.Summary {
	return analytics.Summarize(
		s.controller.Training(),
		s.controller.Metrics(),
		s.controller.PlanItems(),
		s.heightCm(ctx),
	)
}

// heightCm prefers the stored setting over the configured one.
func (s *Server) heightCm(ctx context.Context) float64 {
	stored, err := s.settings.Get(ctx)
	if err != nil {
		log.Debugf("read settings: %s", err)
	} else if stored.HeightCm > 0 {
		return stored.HeightCm
	}
	return s.config.UserHeightCm
}

func formatOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func (s *Server) closeRedis() {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Close(); err != nil {
		log.Errorf("failed to close redis client conn: %s", err)
	}
	s.redisClient = nil
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	if s.controller != nil {
		s.controller.Stop()
		select {
		case <-s.controller.Done():
		case <-time.After(5 * time.Second):
			log.Warnln("fetch controller did not stop in time")
		}
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wg.Wait()

	if ok := sentry.Flush(2 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	s.closeRedis()

	if s.metricsHttpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}
}
