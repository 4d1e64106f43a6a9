package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/docstoretest"
	"github.com/2beens/fittrack/internal/fetch"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
)

func seededStore(t *testing.T) *docstoretest.MemStore {
	t.Helper()
	store := docstoretest.NewMemStore()
	ctx := context.Background()

	_, err := store.BulkInsert(ctx, docstore.CollectionTraining, []docstore.Document{
		{"_id": "t1", "activity": "Squat", "date": "2024-05-01", "sets": 3.0, "reps": 5.0, "weightKg": 100.0},
		{"_id": "t2", "activity": "Bench Press", "date": "2024-05-03"},
		{"_id": "t3", "activity": "Deadlift", "date": "2024-04-20", "sets": 1.0, "reps": 1.0, "weightKg": 160.0},
	})
	require.NoError(t, err)
	_, err = store.BulkInsert(ctx, docstore.CollectionMetrics, []docstore.Document{
		{"_id": "m1", "date": "2024-04-01", "weightKg": 77.0},
		{"_id": "m2", "date": "2024-05-01", "shoulderCm": 110.0, "waistCm": 82.0, "weightKg": 76.0},
	})
	require.NoError(t, err)
	_, err = store.BulkInsert(ctx, docstore.CollectionTrainingPlan, []docstore.Document{
		{"_id": "p2", "title": "Row", "completed": false, "createdAt": "2024-05-02T08:00:00Z"},
		{"_id": "p1", "title": "Squat", "completed": false, "createdAt": "2024-05-01T08:00:00Z"},
	})
	require.NoError(t, err)
	return store
}

func waitReady(t *testing.T, c *fetch.Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, st := range c.Status() {
			if st.Outcome != fetch.StateReady {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func stopAndWait(t *testing.T, c *fetch.Controller) {
	t.Helper()
	c.Stop()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch loop did not exit")
	}
}

func TestController_StartFetchesNormalizesAndSorts(t *testing.T) {
	metricsManager, reg := metrics.NewTestManagerAndRegistry()
	c := fetch.NewController(seededStore(t), time.Hour, metricsManager)

	require.NoError(t, c.Start(context.Background()))
	defer stopAndWait(t, c)
	waitReady(t, c)

	training := c.Training()
	require.Len(t, training, 3)
	assert.Equal(t, "t2", training[0].ID)
	assert.Equal(t, "t1", training[1].ID)
	assert.Equal(t, "t3", training[2].ID)
	// missing numbers default to 0
	assert.Equal(t, 0, training[0].Sets)
	assert.Equal(t, 0.0, training[0].WeightKg)

	metricRecords := c.Metrics()
	require.Len(t, metricRecords, 2)
	assert.Equal(t, "m2", metricRecords[0].ID)
	assert.Equal(t, 0.0, metricRecords[1].ShoulderCm)

	plan := c.PlanItems()
	require.Len(t, plan, 2)
	assert.Equal(t, "p1", plan[0].ID)
	assert.Equal(t, "p2", plan[1].ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterFetches.With(
		prometheus.Labels{"collection": docstore.CollectionTraining, "result": "ok"},
	)))
	assert.Equal(t, float64(3), testutil.ToFloat64(metricsManager.GaugeCachedDocs.WithLabelValues(docstore.CollectionTraining)))
	count, err := testutil.GatherAndCount(reg, "fittrack_test_cached_documents")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestController_FailureKeepsCache(t *testing.T) {
	store := seededStore(t)
	metricsManager := metrics.NewTestManager()
	c := fetch.NewController(store, time.Hour, metricsManager)
	ctx := context.Background()

	require.NoError(t, c.FetchNow(ctx, docstore.CollectionTraining))
	require.Len(t, c.Snapshot(docstore.CollectionTraining), 3)

	store.Fail(docstore.OpFind, docstore.ErrBackendUnavailable)
	err := c.FetchNow(ctx, docstore.CollectionTraining)
	require.Error(t, err)
	assert.True(t, docstore.IsReadFailure(err))

	assert.Len(t, c.Snapshot(docstore.CollectionTraining), 3)
	for _, st := range c.Status() {
		if st.Collection == docstore.CollectionTraining {
			assert.Equal(t, fetch.StateFailed, st.Outcome)
			assert.Equal(t, fetch.StateIdle, st.State)
			assert.Equal(t, 3, st.Docs)
			assert.Contains(t, st.LastError, "backend unavailable")
			assert.False(t, st.LastSuccess.IsZero())
		}
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterFetches.With(
		prometheus.Labels{"collection": docstore.CollectionTraining, "result": "error"},
	)))
}

func TestController_FetchNowValidation(t *testing.T) {
	c := fetch.NewController(docstoretest.NewMemStore(), time.Hour, nil)

	err := c.FetchNow(context.Background(), "workouts")
	assert.ErrorIs(t, err, docstore.ErrCollectionNotFound)

	// theme is a valid collection, just not polled by default
	err = c.FetchNow(context.Background(), docstore.CollectionTheme)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, docstore.ErrCollectionNotFound)
}

func TestController_Refresh(t *testing.T) {
	store := seededStore(t)
	c := fetch.NewController(store, time.Hour, nil)
	changes, unsubscribe := c.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, c.Start(context.Background()))
	defer stopAndWait(t, c)
	waitReady(t, c)

	_, err := store.Insert(context.Background(), docstore.CollectionTraining, docstore.Document{
		"activity": "Row", "date": "2024-06-01",
	})
	require.NoError(t, err)
	c.Refresh(docstore.CollectionTraining)

	require.Eventually(t, func() bool {
		return len(c.Snapshot(docstore.CollectionTraining)) == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Row", c.Training()[0].Activity)

	seen := map[string]int{}
	for len(changes) > 0 {
		change := <-changes
		seen[change.Collection] = change.Docs
	}
	assert.Equal(t, 4, seen[docstore.CollectionTraining])
	assert.Equal(t, 2, seen[docstore.CollectionMetrics])
}

func TestController_Ticks(t *testing.T) {
	store := seededStore(t)
	c := fetch.NewController(store, 10*time.Millisecond, nil, docstore.CollectionMetrics)

	require.NoError(t, c.Start(context.Background()))
	defer stopAndWait(t, c)
	waitReady(t, c)

	_, err := store.ClearCollection(context.Background(), docstore.CollectionMetrics)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Snapshot(docstore.CollectionMetrics)) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestController_StartTwiceAndRestart(t *testing.T) {
	c := fetch.NewController(seededStore(t), time.Hour, nil)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsRunning())
	assert.ErrorIs(t, c.Start(context.Background()), fetch.ErrAlreadyRunning)

	stopAndWait(t, c)
	assert.False(t, c.IsRunning())
	// stopping twice is fine
	c.Stop()

	require.NoError(t, c.Start(context.Background()))
	defer stopAndWait(t, c)
	waitReady(t, c)
}

func TestController_ParentContextCancel(t *testing.T) {
	c := fetch.NewController(seededStore(t), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, c.Start(ctx))
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fetch loop did not exit")
	}
	assert.False(t, c.IsRunning())
}

func TestController_StopDropsInFlightFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := docstoretest.NewMockStore(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	store.EXPECT().
		Find(gomock.Any(), docstore.CollectionTraining, docstore.Query{}).
		DoAndReturn(func(ctx context.Context, _ string, _ docstore.Query) ([]docstore.Document, error) {
			close(started)
			<-release
			// Stop does not cancel the fetch itself
			assert.NoError(t, ctx.Err())
			return []docstore.Document{{"_id": "t1", "date": "2024-05-01"}}, nil
		})

	c := fetch.NewController(store, time.Hour, nil, docstore.CollectionTraining)
	require.NoError(t, c.Start(context.Background()))
	<-started

	c.Stop()
	close(release)
	<-c.Done()

	assert.Empty(t, c.Snapshot(docstore.CollectionTraining))
	assert.Equal(t, fetch.StateIdle, c.Status()[0].State)
	// the dropped result is not an outcome
	assert.Equal(t, fetch.StateIdle, c.Status()[0].Outcome)
}

func TestController_CycleReturnsToIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := docstoretest.NewMockStore(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	store.EXPECT().
		Find(gomock.Any(), docstore.CollectionMetrics, docstore.Query{}).
		DoAndReturn(func(_ context.Context, _ string, _ docstore.Query) ([]docstore.Document, error) {
			close(started)
			<-release
			return []docstore.Document{{"_id": "m1", "date": "2024-05-01"}}, nil
		})

	c := fetch.NewController(store, time.Hour, nil, docstore.CollectionMetrics)
	assert.Equal(t, fetch.StateIdle, c.Status()[0].State)

	fetched := make(chan error, 1)
	go func() {
		fetched <- c.FetchNow(context.Background(), docstore.CollectionMetrics)
	}()
	<-started
	assert.Equal(t, fetch.StateFetching, c.Status()[0].State)

	close(release)
	require.NoError(t, <-fetched)

	st := c.Status()[0]
	assert.Equal(t, fetch.StateIdle, st.State)
	assert.Equal(t, fetch.StateReady, st.Outcome)
	assert.Equal(t, 1, st.Docs)
}

func TestController_SnapshotIsACopy(t *testing.T) {
	c := fetch.NewController(seededStore(t), time.Hour, nil)
	require.NoError(t, c.FetchNow(context.Background(), docstore.CollectionMetrics))

	snapshot := c.Snapshot(docstore.CollectionMetrics)
	snapshot[0]["weightKg"] = 1.0
	snapshot[0] = nil

	again := c.Snapshot(docstore.CollectionMetrics)
	require.NotNil(t, again[0])
	assert.Equal(t, 76.0, again[0]["weightKg"])
}

func TestController_Unsubscribe(t *testing.T) {
	c := fetch.NewController(seededStore(t), time.Hour, nil)
	changes, unsubscribe := c.Subscribe(0)

	unsubscribe()
	unsubscribe()
	_, open := <-changes
	assert.False(t, open)

	// no subscriber left to notify
	require.NoError(t, c.FetchNow(context.Background(), docstore.CollectionTraining))
}
