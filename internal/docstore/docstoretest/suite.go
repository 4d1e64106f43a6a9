package docstoretest

import (
	"context"
	"errors"
	"testing"

	"github.com/2beens/fittrack/internal/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreSuite checks the behaviour every Store backend must share.
// newStore must return an empty store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("unknown collection", func(t *testing.T) {
		testUnknownCollection(t, newStore(t))
	})
	t.Run("insert stamps id and createdAt", func(t *testing.T) {
		testInsertStamps(t, newStore(t))
	})
	t.Run("insert keeps provided id and createdAt", func(t *testing.T) {
		testInsertKeepsProvided(t, newStore(t))
	})
	t.Run("find by equality", func(t *testing.T) {
		testFindByEquality(t, newStore(t))
	})
	t.Run("update single and multi", func(t *testing.T) {
		testUpdateSingleAndMulti(t, newStore(t))
	})
	t.Run("update modes", func(t *testing.T) {
		testUpdateModes(t, newStore(t))
	})
	t.Run("remove single and multi", func(t *testing.T) {
		testRemoveSingleAndMulti(t, newStore(t))
	})
	t.Run("clear collection", func(t *testing.T) {
		testClearCollection(t, newStore(t))
	})
	t.Run("bulk insert", func(t *testing.T) {
		testBulkInsert(t, newStore(t))
	})
}

func testUnknownCollection(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	const coll = "workouts"

	_, err := store.Find(ctx, coll, docstore.Query{})
	assertCollectionNotFound(t, err)
	assert.True(t, docstore.IsReadFailure(err))

	_, err = store.Insert(ctx, coll, docstore.Document{"a": 1})
	assertCollectionNotFound(t, err)
	assert.True(t, docstore.IsWriteFailure(err))

	_, err = store.Update(ctx, coll, docstore.Query{}, docstore.Document{"a": 2}, docstore.UpdateOptions{})
	assertCollectionNotFound(t, err)
	assert.True(t, docstore.IsWriteFailure(err))

	_, err = store.Remove(ctx, coll, docstore.Query{}, docstore.RemoveOptions{})
	assertCollectionNotFound(t, err)

	_, err = store.ClearCollection(ctx, coll)
	assertCollectionNotFound(t, err)

	_, err = store.BulkInsert(ctx, coll, []docstore.Document{{"a": 1}})
	assertCollectionNotFound(t, err)
}

func assertCollectionNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, docstore.ErrCollectionNotFound), "unexpected error: %s", err)
}

func testInsertStamps(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	inserted, err := store.Insert(ctx, docstore.CollectionTraining, docstore.Document{
		"activity": "Squat",
		"sets":     3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, inserted.ID())
	createdAt := inserted.String(docstore.FieldCreatedAt)
	require.NotEmpty(t, createdAt)
	_, err = docstore.ParseTime(createdAt)
	require.NoError(t, err)

	found, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, inserted.ID(), found[0].ID())
	assert.Equal(t, "Squat", found[0]["activity"])
	assert.EqualValues(t, 3, found[0]["sets"])
}

func testInsertKeepsProvided(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	inserted, err := store.Insert(ctx, docstore.CollectionMetrics, docstore.Document{
		docstore.FieldID:        "metric-1",
		docstore.FieldCreatedAt: "2024-01-02T03:04:05Z",
		"weightKg":              75.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "metric-1", inserted.ID())
	assert.Equal(t, "2024-01-02T03:04:05Z", inserted.String(docstore.FieldCreatedAt))

	_, err = store.Insert(ctx, docstore.CollectionMetrics, docstore.Document{docstore.FieldID: "metric-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrDuplicateID)
	assert.True(t, docstore.IsWriteFailure(err))

	found, err := store.Find(ctx, docstore.CollectionMetrics, docstore.Query{docstore.FieldID: "metric-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.EqualValues(t, 75.5, found[0]["weightKg"])
}

func testFindByEquality(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	for _, d := range []docstore.Document{
		{"activity": "Squat", "sets": 3, "completed": true},
		{"activity": "Squat", "sets": 5, "completed": false},
		{"activity": "Deadlift", "sets": 3, "completed": true},
	} {
		_, err := store.Insert(ctx, docstore.CollectionTraining, d)
		require.NoError(t, err)
	}

	all, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	squats, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{"activity": "Squat"})
	require.NoError(t, err)
	assert.Len(t, squats, 2)

	threeSets, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{"sets": 3, "completed": true})
	require.NoError(t, err)
	assert.Len(t, threeSets, 2)

	none, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{"activity": "Row"})
	require.NoError(t, err)
	assert.Empty(t, none)

	// collections are isolated
	other, err := store.Find(ctx, docstore.CollectionMetrics, docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testUpdateSingleAndMulti(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, docstore.CollectionTrainingPlan, docstore.Document{
			"title":     "Bench",
			"completed": false,
		})
		require.NoError(t, err)
	}

	n, err := store.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{"title": "Bench"},
		docstore.Document{"completed": true},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := store.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{"completed": true})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	n, err = store.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{"title": "Bench"},
		docstore.Document{"completed": true},
		docstore.UpdateOptions{Mode: docstore.ModePatch, Multi: true},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	done, err = store.Find(ctx, docstore.CollectionTrainingPlan, docstore.Query{"completed": true})
	require.NoError(t, err)
	assert.Len(t, done, 3)

	n, err = store.Update(ctx, docstore.CollectionTrainingPlan,
		docstore.Query{"title": "Squat"},
		docstore.Document{"completed": true},
		docstore.UpdateOptions{Mode: docstore.ModePatch, Multi: true},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testUpdateModes(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	inserted, err := store.Insert(ctx, docstore.CollectionTraining, docstore.Document{
		"activity": "Squat",
		"sets":     3,
		"notes":    "felt heavy",
	})
	require.NoError(t, err)
	id := inserted.ID()

	n, err := store.Update(ctx, docstore.CollectionTraining,
		docstore.Query{docstore.FieldID: id},
		docstore.Document{"sets": 4, "relatedRecordId": nil},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	found, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{docstore.FieldID: id})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.EqualValues(t, 4, found[0]["sets"])
	assert.Equal(t, "felt heavy", found[0]["notes"])
	assert.Contains(t, found[0], "relatedRecordId")
	assert.Nil(t, found[0]["relatedRecordId"])
	assert.NotEmpty(t, found[0].String(docstore.FieldUpdatedAt))

	n, err = store.Update(ctx, docstore.CollectionTraining,
		docstore.Query{docstore.FieldID: id},
		docstore.Document{docstore.FieldID: "hijacked", "activity": "Front Squat"},
		docstore.UpdateOptions{Mode: docstore.ModeReplace},
	)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	found, err = store.Find(ctx, docstore.CollectionTraining, docstore.Query{docstore.FieldID: id})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Front Squat", found[0]["activity"])
	assert.NotContains(t, found[0], "notes")
	assert.NotContains(t, found[0], "sets")
	assert.Equal(t, inserted.String(docstore.FieldCreatedAt), found[0].String(docstore.FieldCreatedAt))

	hijacked, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{docstore.FieldID: "hijacked"})
	require.NoError(t, err)
	assert.Empty(t, hijacked)
}

func testRemoveSingleAndMulti(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.Insert(ctx, docstore.CollectionMetrics, docstore.Document{"date": "2024-03-01"})
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, docstore.CollectionMetrics, docstore.Document{"date": "2024-03-02"})
	require.NoError(t, err)

	n, err := store.Remove(ctx, docstore.CollectionMetrics, docstore.Query{"date": "2024-03-01"}, docstore.RemoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Remove(ctx, docstore.CollectionMetrics, docstore.Query{"date": "2024-03-01"}, docstore.RemoveOptions{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = store.Remove(ctx, docstore.CollectionMetrics, docstore.Query{"date": "2024-03-01"}, docstore.RemoveOptions{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	left, err := store.Find(ctx, docstore.CollectionMetrics, docstore.Query{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2024-03-02", left[0]["date"])
}

func testClearCollection(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, docstore.CollectionTraining, docstore.Document{"n": i})
		require.NoError(t, err)
	}
	_, err := store.Insert(ctx, docstore.CollectionMetrics, docstore.Document{"weightKg": 80})
	require.NoError(t, err)

	n, err := store.ClearCollection(ctx, docstore.CollectionTraining)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	training, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)
	assert.Empty(t, training)

	metrics, err := store.Find(ctx, docstore.CollectionMetrics, docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, metrics, 1)

	n, err = store.ClearCollection(ctx, docstore.CollectionTraining)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testBulkInsert(t *testing.T, store docstore.Store) {
	ctx := context.Background()

	inserted, err := store.BulkInsert(ctx, docstore.CollectionTraining, []docstore.Document{
		{"activity": "Squat"},
		{"activity": "Bench", docstore.FieldCreatedAt: "2023-05-05T10:00:00Z"},
		{docstore.FieldID: "keep-me", "activity": "Row"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 3)

	ids := map[string]bool{}
	for _, d := range inserted {
		require.NotEmpty(t, d.ID())
		require.NotEmpty(t, d.String(docstore.FieldCreatedAt))
		ids[d.ID()] = true
	}
	assert.Len(t, ids, 3)
	assert.True(t, ids["keep-me"])

	bench, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{"activity": "Bench"})
	require.NoError(t, err)
	require.Len(t, bench, 1)
	assert.Equal(t, "2023-05-05T10:00:00Z", bench[0].String(docstore.FieldCreatedAt))

	all, err := store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := store.BulkInsert(ctx, docstore.CollectionTraining, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
