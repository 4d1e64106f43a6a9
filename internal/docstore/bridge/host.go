// Package bridge implements the native bridge store: a sandboxed host
// exposing one named command per store capability, and the client that
// calls those commands.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/telemetry/metrics"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Host struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config        *config.Config
	handler       *commandHandler
	secretChecker *middleware.SecretChecker
	rateLimiter   middleware.RequestRateLimiter

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewHostParams struct {
	Config     *config.Config
	SecretHash string
	// RateLimiter is optional, commands are not limited without it
	RateLimiter    middleware.RequestRateLimiter
	MetricsManager *metrics.Manager
	PromRegistry   *prometheus.Registry
}

func NewHost(repo Repo, params NewHostParams) *Host {
	metricsManager := params.MetricsManager
	if metricsManager == nil {
		metricsManager = metrics.NewManager("fittrack", "bridge", prometheus.NewRegistry())
	}

	cache := newFindCache(
		params.Config.BridgeFindCacheSizeMB,
		params.Config.BridgeFindCacheTTLSeconds,
	)

	return &Host{
		config:         params.Config,
		handler:        newCommandHandler(repo, cache, metricsManager),
		secretChecker:  middleware.NewSecretChecker(params.SecretHash, "/invoke/"+CommandPing),
		rateLimiter:    params.RateLimiter,
		metricsManager: metricsManager,
		promRegistry:   params.PromRegistry,
	}
}

func (h *Host) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("bridge-router"))

	r.HandleFunc("/invoke/{command}", h.handler.HandleCommand).Methods("POST", "OPTIONS").Name("invoke")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(h.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.CommandMetrics(h.metricsManager))
	r.Use(middleware.Cors())
	r.Use(h.secretChecker.Check())
	if h.rateLimiter != nil {
		r.Use(middleware.RateLimit(h.rateLimiter, "bridge", h.config.BridgeRateLimitPerMin, h.metricsManager))
	}
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

// Serve starts the command and metrics servers and returns the address
// the command server listens on.
func (h *Host) Serve(host string, port int) (net.Addr, error) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", ipAndPort)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", ipAndPort, err)
	}

	h.httpServer = &http.Server{
		Handler:      h.routerSetup(),
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
	}

	go func() {
		log.Infof(" > bridge host listening on: [%s]", listener.Addr())
		err := h.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("bridge host, serve: %s", err)
		}
	}()

	if h.promRegistry != nil && h.config.PrometheusMetricsPort != "" {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", promhttp.HandlerFor(
			h.promRegistry,
			promhttp.HandlerOpts{},
		))
		metricsAddr := net.JoinHostPort(h.config.PrometheusMetricsHost, h.config.PrometheusMetricsPort)
		h.metricsHttpServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsRouter,
		}

		go func() {
			log.Debugf(" > metrics listening on: [%s]", metricsAddr)
			err := h.metricsHttpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("metrics service, listen and serve: %s", err)
			}
		}()
	}

	h.metricsManager.GaugeLifeSignal.Set(1)

	return listener.Addr(), nil
}

func (h *Host) GracefulShutdown() {
	log.Debug("bridge host graceful shutdown initiated ...")

	h.metricsManager.GaugeLifeSignal.Set(0)

	if ok := sentry.Flush(2 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if h.httpServer != nil {
		if err := h.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown bridge http server: %s", err)
		}
		log.Warnln("bridge host shut down")
	}

	if h.metricsHttpServer != nil {
		if err := h.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Errorf(" >>> failed to gracefully shutdown metrics http server: %s", err)
		}
		log.Warnln("metrics server shut down")
	}
}
