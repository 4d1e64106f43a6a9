package docstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/docstoretest"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
)

func TestInstrumentedStore(t *testing.T) {
	docstoretest.RunStoreSuite(t, func(t *testing.T) docstore.Store {
		return docstore.NewInstrumentedStore(docstoretest.NewMemStore(), metrics.NewTestManager())
	})
}

func TestInstrumentedStore_CountsOps(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	mem := docstoretest.NewMemStore()
	store := docstore.NewInstrumentedStore(mem, metricsManager)
	ctx := context.Background()

	_, err := store.Insert(ctx, docstore.CollectionTraining, docstore.Document{"activity": "Squat"})
	require.NoError(t, err)
	_, err = store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)

	mem.Fail(docstore.OpFind, errors.New("io"))
	_, err = store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.Error(t, err)

	counter := func(op, status string) float64 {
		return testutil.ToFloat64(metricsManager.CounterStoreOps.With(prometheus.Labels{
			"backend": "memory",
			"op":      op,
			"status":  status,
		}))
	}
	assert.Equal(t, float64(1), counter(docstore.OpInsert, "ok"))
	assert.Equal(t, float64(1), counter(docstore.OpFind, "ok"))
	assert.Equal(t, float64(1), counter(docstore.OpFind, "error"))
	assert.Equal(t, "memory", store.Name())
	assert.Same(t, mem, store.Unwrap())
}
