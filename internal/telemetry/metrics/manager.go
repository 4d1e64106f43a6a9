package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterStoreOps            *prometheus.CounterVec
	CounterFetches             *prometheus.CounterVec
	CounterCascadeOps          *prometheus.CounterVec
	CounterBridgeCommands      *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter
	CounterFindCacheHits       prometheus.Counter

	// gauges
	GaugeOrphans    *prometheus.GaugeVec
	GaugeCachedDocs *prometheus.GaugeVec
	GaugeLifeSignal prometheus.Gauge

	// histograms
	HistBridgeCommandDuration *prometheus.HistogramVec
	HistHostMessageDuration   *prometheus.HistogramVec
}

func NewTestManager() *Manager {
	return NewManager("fittrack", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("fittrack", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterStoreOps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_ops",
		Help:      "The total number of document store operations",
	}, []string{"backend", "op", "status"})
	counterFetches := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fetches",
		Help:      "The total number of collection fetches done by the poll controller",
	}, []string{"collection", "result"})
	counterCascadeOps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cascade_ops",
		Help:      "The total number of plan item cascade operations",
	}, []string{"op", "status"})
	counterBridgeCommands := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bridge_commands",
		Help:      "The total number of commands invoked on the bridge host",
	}, []string{"command", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})
	counterFindCacheHits := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "find_cache_hits",
		Help:      "The total number of find results served from cache",
	})

	gaugeOrphans := factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "orphan_references",
		Help:      "Number of dangling plan item / training record references found by the last check",
	}, []string{"kind"})
	gaugeCachedDocs := factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cached_documents",
		Help:      "Number of documents currently held in the fetch cache",
	}, []string{"collection"})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})

	histBridgeCommandDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bridge_command_duration_seconds",
		Help:      "Histogram of bridge command handling time in seconds",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"command"})
	histHostMessageDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "host_message_duration_seconds",
		Help:      "Histogram of embedded host message handling time in seconds",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op"})

	return &Manager{
		CounterStoreOps:            counterStoreOps,
		CounterFetches:             counterFetches,
		CounterCascadeOps:          counterCascadeOps,
		CounterBridgeCommands:      counterBridgeCommands,
		CounterHandleRequestPanic:  counterHandleRequestPanic,
		CounterRateLimitedRequests: counterRateLimitedRequests,
		CounterFindCacheHits:       counterFindCacheHits,
		GaugeOrphans:               gaugeOrphans,
		GaugeCachedDocs:            gaugeCachedDocs,
		GaugeLifeSignal:            gaugeLifeSignal,
		HistBridgeCommandDuration:  histBridgeCommandDuration,
		HistHostMessageDuration:    histHostMessageDuration,
	}
}
