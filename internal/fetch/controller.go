// Package fetch keeps an in-memory copy of the document collections,
// re-read on a fixed interval and on demand after mutations.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/fitness"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrAlreadyRunning = errors.New("fetch controller already running")

type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CollectionStatus is a collection's place in the poll cycle. State is
// Fetching while a find is in flight and Idle otherwise; Outcome keeps how
// the last finished fetch ended (Ready or Failed, Idle before the first one).
type CollectionStatus struct {
	Collection  string
	State       State
	Outcome     State
	Docs        int
	LastSuccess time.Time
	LastError   string
}

// Change is sent to subscribers after a collection's cache was replaced.
type Change struct {
	Collection string
	Docs       int
}

type Controller struct {
	store          docstore.Store
	interval       time.Duration
	collections    []string
	metricsManager *metrics.Manager

	mutex       sync.RWMutex
	cache       map[string][]docstore.Document
	status      map[string]*CollectionStatus
	subscribers map[int]chan Change
	nextSubID   int

	running bool
	epoch   int
	cancel  context.CancelFunc
	done    chan struct{}
	refresh chan string
}

// NewController polls the given collections, or all data collections when none are given.
func NewController(
	store docstore.Store,
	interval time.Duration,
	metricsManager *metrics.Manager,
	collections ...string,
) *Controller {
	if len(collections) == 0 {
		collections = docstore.DataCollections
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	status := make(map[string]*CollectionStatus, len(collections))
	for _, coll := range collections {
		status[coll] = &CollectionStatus{Collection: coll, State: StateIdle}
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		store:          store,
		interval:       interval,
		collections:    collections,
		metricsManager: metricsManager,
		cache:          make(map[string][]docstore.Document, len(collections)),
		status:         status,
		subscribers:    make(map[int]chan Change),
		done:           done,
		refresh:        make(chan string, len(collections)*4),
	}
}

// Start fetches every collection right away and then on each tick,
// until ctx is done or Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mutex.Lock()
	if c.running {
		c.mutex.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.epoch++
	c.cancel = cancel
	c.done = make(chan struct{})
	epoch, done := c.epoch, c.done
	c.mutex.Unlock()

	go c.loop(loopCtx, epoch, done)
	log.Debugf("fetch controller started, polling %v every %s", c.collections, c.interval)
	return nil
}

// Stop cancels the timer. A fetch in flight is left to complete and its
// result is dropped. Stop does not wait for it, Done does.
func (c *Controller) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.cancel()
	log.Debugln("fetch controller stopped")
}

// Done is closed once the polling loop has exited.
func (c *Controller) Done() <-chan struct{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.done
}

func (c *Controller) IsRunning() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.running
}

// Refresh asks for an out of turn fetch of the given collections (all when
// none given). It never blocks; requests made while one is queued coalesce.
func (c *Controller) Refresh(collections ...string) {
	if len(collections) == 0 {
		collections = c.collections
	}
	for _, coll := range collections {
		select {
		case c.refresh <- coll:
		default:
			log.Tracef("fetch controller: refresh queue full, dropping [%s]", coll)
		}
	}
}

func (c *Controller) loop(ctx context.Context, epoch int, done chan struct{}) {
	defer close(done)

	// fetches outlive Stop, their results are discarded by epoch
	fetchCtx := context.WithoutCancel(ctx)

	c.fetchAll(fetchCtx, epoch)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopped(epoch)
			return
		case <-ticker.C:
			c.fetchAll(fetchCtx, epoch)
		case coll := <-c.refresh:
			pending := map[string]bool{coll: true}
		drain:
			for {
				select {
				case more := <-c.refresh:
					pending[more] = true
				default:
					break drain
				}
			}
			for _, coll := range c.collections {
				if pending[coll] {
					c.fetch(fetchCtx, epoch, coll)
				}
			}
		}
	}
}

// stopped marks the controller stopped when the parent ctx ended the loop.
func (c *Controller) stopped(epoch int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.epoch == epoch && c.running {
		c.running = false
		c.cancel()
	}
}

func (c *Controller) fetchAll(ctx context.Context, epoch int) {
	for _, coll := range c.collections {
		if !c.current(epoch) {
			return
		}
		c.fetch(ctx, epoch, coll)
	}
}

// FetchNow fetches one collection synchronously and applies the result.
func (c *Controller) FetchNow(ctx context.Context, collection string) error {
	c.mutex.RLock()
	epoch := c.epoch
	c.mutex.RUnlock()
	return c.fetchCollection(ctx, epoch, collection, true)
}

func (c *Controller) fetch(ctx context.Context, epoch int, collection string) {
	// failures are logged inside and never surface from the background loop
	_ = c.fetchCollection(ctx, epoch, collection, false)
}

func (c *Controller) fetchCollection(ctx context.Context, epoch int, collection string, always bool) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "fetch.collection")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("collection", collection))

	if err := docstore.CheckCollection(docstore.OpFind, collection); err != nil {
		return err
	}
	if !c.setState(collection, StateFetching) {
		return fmt.Errorf("collection [%s] is not polled", collection)
	}

	docs, err := c.store.Find(ctx, collection, docstore.Query{})
	if !always && !c.current(epoch) {
		log.Tracef("fetch controller: dropping stale result for [%s]", collection)
		c.setState(collection, StateIdle)
		return nil
	}

	if err != nil {
		c.failed(collection, err)
		return err
	}

	docs = fitness.NormalizeAll(collection, docs)
	fitness.Sort(collection, docs)
	c.replace(collection, docs)
	return nil
}

func (c *Controller) current(epoch int) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.running && c.epoch == epoch
}

func (c *Controller) setState(collection string, state State) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	st, ok := c.status[collection]
	if !ok {
		return false
	}
	st.State = state
	return true
}

func (c *Controller) failed(collection string, err error) {
	log.Warnf("fetch controller: fetch [%s] failed, keeping cached docs: %s", collection, err)

	c.mutex.Lock()
	st := c.status[collection]
	st.Outcome = StateFailed
	st.State = StateIdle
	st.LastError = err.Error()
	c.mutex.Unlock()

	if c.metricsManager != nil {
		c.metricsManager.CounterFetches.With(prometheus.Labels{"collection": collection, "result": "error"}).Inc()
	}
}

func (c *Controller) replace(collection string, docs []docstore.Document) {
	c.mutex.Lock()
	c.cache[collection] = docs
	st := c.status[collection]
	st.Outcome = StateReady
	st.State = StateIdle
	st.Docs = len(docs)
	st.LastSuccess = time.Now()
	st.LastError = ""

	change := Change{Collection: collection, Docs: len(docs)}
	for id, ch := range c.subscribers {
		select {
		case ch <- change:
		default:
			log.Tracef("fetch controller: subscriber %d is behind, skipping change of [%s]", id, collection)
		}
	}
	c.mutex.Unlock()

	if c.metricsManager != nil {
		c.metricsManager.CounterFetches.With(prometheus.Labels{"collection": collection, "result": "ok"}).Inc()
		c.metricsManager.GaugeCachedDocs.WithLabelValues(collection).Set(float64(len(docs)))
	}
}

// Subscribe returns a channel receiving a Change after every cache
// replacement, and the func that cancels the subscription. Changes are
// dropped while the channel is full.
func (c *Controller) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	c.mutex.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mutex.Lock()
			delete(c.subscribers, id)
			c.mutex.Unlock()
			close(ch)
		})
	}
}

// Snapshot returns a copy of the cached documents of a collection.
func (c *Controller) Snapshot(collection string) []docstore.Document {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return docstore.CloneAll(c.cache[collection])
}

func (c *Controller) Training() []fitness.TrainingRecord {
	return fitness.TrainingRecords(c.Snapshot(docstore.CollectionTraining))
}

func (c *Controller) Metrics() []fitness.MetricRecord {
	return fitness.MetricRecords(c.Snapshot(docstore.CollectionMetrics))
}

func (c *Controller) PlanItems() []fitness.TrainingPlanItem {
	return fitness.PlanItems(c.Snapshot(docstore.CollectionTrainingPlan))
}

func (c *Controller) Status() []CollectionStatus {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	out := make([]CollectionStatus, 0, len(c.collections))
	for _, coll := range c.collections {
		out = append(out, *c.status[coll])
	}
	return out
}
