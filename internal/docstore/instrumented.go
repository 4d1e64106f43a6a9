package docstore

import (
	"context"

	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
)

// InstrumentedStore adds tracing spans and operation counters to a Store.
type InstrumentedStore struct {
	store          Store
	metricsManager *metrics.Manager
}

func NewInstrumentedStore(store Store, metricsManager *metrics.Manager) *InstrumentedStore {
	return &InstrumentedStore{
		store:          store,
		metricsManager: metricsManager,
	}
}

func (s *InstrumentedStore) Name() string {
	return s.store.Name()
}

func (s *InstrumentedStore) Unwrap() Store {
	return s.store
}

func (s *InstrumentedStore) observe(op string, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metricsManager.CounterStoreOps.With(prometheus.Labels{
		"backend": s.store.Name(),
		"op":      op,
		"status":  status,
	}).Inc()
}

func (s *InstrumentedStore) Ping(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.ping")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("backend", s.store.Name()))
	return s.store.Ping(ctx)
}

func (s *InstrumentedStore) Find(ctx context.Context, collection string, query Query) (_ []Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.find")
	defer func() {
		s.observe(OpFind, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
		attribute.Int("query.fields", len(query)),
	)

	docs, err := s.store.Find(ctx, collection, query)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("docs", len(docs)))
	return docs, nil
}

func (s *InstrumentedStore) Insert(ctx context.Context, collection string, doc Document) (_ Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.insert")
	defer func() {
		s.observe(OpInsert, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
	)

	inserted, err := s.store.Insert(ctx, collection, doc)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("id", inserted.ID()))
	return inserted, nil
}

func (s *InstrumentedStore) Update(ctx context.Context, collection string, query Query, patch Document, opts UpdateOptions) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.update")
	defer func() {
		s.observe(OpUpdate, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
		attribute.Bool("multi", opts.Multi),
		attribute.String("mode", opts.Mode.String()),
	)

	n, err := s.store.Update(ctx, collection, query, patch, opts)
	span.SetAttributes(attribute.Int("affected", n))
	return n, err
}

func (s *InstrumentedStore) Remove(ctx context.Context, collection string, query Query, opts RemoveOptions) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.remove")
	defer func() {
		s.observe(OpRemove, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
		attribute.Bool("multi", opts.Multi),
	)

	n, err := s.store.Remove(ctx, collection, query, opts)
	span.SetAttributes(attribute.Int("affected", n))
	return n, err
}

func (s *InstrumentedStore) ClearCollection(ctx context.Context, collection string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.clear")
	defer func() {
		s.observe(OpClearCollection, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
	)

	n, err := s.store.ClearCollection(ctx, collection)
	span.SetAttributes(attribute.Int("affected", n))
	return n, err
}

func (s *InstrumentedStore) BulkInsert(ctx context.Context, collection string, docs []Document) (_ []Document, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "docstore.bulkinsert")
	defer func() {
		s.observe(OpBulkInsert, err)
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("backend", s.store.Name()),
		attribute.String("collection", collection),
		attribute.Int("docs", len(docs)),
	)

	return s.store.BulkInsert(ctx, collection, docs)
}
