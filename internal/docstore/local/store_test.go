package local_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/docstore/docstoretest"
	"github.com/2beens/fittrack/internal/docstore/local"
)

func newFileStore(t *testing.T) *local.Store {
	area, err := local.NewFileArea(t.TempDir())
	require.NoError(t, err)
	return local.NewStore(area)
}

func TestStore_FileArea(t *testing.T) {
	docstoretest.RunStoreSuite(t, func(t *testing.T) docstore.Store {
		return newFileStore(t)
	})
}

func TestStore_LastWriterWins(t *testing.T) {
	dir := t.TempDir()
	areaA, err := local.NewFileArea(dir)
	require.NoError(t, err)
	areaB, err := local.NewFileArea(dir)
	require.NoError(t, err)
	storeA := local.NewStore(areaA)
	storeB := local.NewStore(areaB)
	ctx := context.Background()

	inserted, err := storeA.Insert(ctx, docstore.CollectionTraining, docstore.Document{"activity": "Squat"})
	require.NoError(t, err)

	// both writers see the same array, the second write replaces the first
	_, err = storeA.Update(ctx, docstore.CollectionTraining,
		docstore.Query{docstore.FieldID: inserted.ID()},
		docstore.Document{"notes": "from A"},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	)
	require.NoError(t, err)
	_, err = storeB.Update(ctx, docstore.CollectionTraining,
		docstore.Query{docstore.FieldID: inserted.ID()},
		docstore.Document{"notes": "from B"},
		docstore.UpdateOptions{Mode: docstore.ModePatch},
	)
	require.NoError(t, err)

	found, err := storeA.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "from B", found[0]["notes"])
}

func TestStore_CorruptCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	areaMock := NewMockKeyValueArea(ctrl)
	store := local.NewStore(areaMock)
	areaMock.EXPECT().
		Get(gomock.Any(), docstore.CollectionMetrics).
		Return([]byte(`{not json`), true, nil)

	_, err := store.Find(context.Background(), docstore.CollectionMetrics, docstore.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrInvalidDocument)
	assert.True(t, docstore.IsReadFailure(err))
}

func TestStore_AreaFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	areaMock := NewMockKeyValueArea(ctrl)
	store := local.NewStore(areaMock)
	ctx := context.Background()

	areaMock.EXPECT().Get(gomock.Any(), docstore.CollectionTraining).Return(nil, false, nil)
	areaMock.EXPECT().Set(gomock.Any(), docstore.CollectionTraining, gomock.Any()).Return(errors.New("quota exceeded"))

	_, err := store.Insert(ctx, docstore.CollectionTraining, docstore.Document{"activity": "Squat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrBackendUnavailable)
	assert.True(t, docstore.IsWriteFailure(err))

	areaMock.EXPECT().Get(gomock.Any(), docstore.CollectionTraining).Return(nil, false, errors.New("io"))
	_, err = store.Find(ctx, docstore.CollectionTraining, docstore.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrBackendUnavailable)
	assert.True(t, docstore.IsReadFailure(err))

	areaMock.EXPECT().Ping(gomock.Any()).Return(errors.New("gone"))
	err = store.Ping(ctx)
	assert.ErrorIs(t, err, docstore.ErrBackendUnavailable)
}

func TestStore_UnknownCollectionNeverTouchesArea(t *testing.T) {
	ctrl := gomock.NewController(t)
	areaMock := NewMockKeyValueArea(ctrl)
	store := local.NewStore(areaMock)

	_, err := store.Find(context.Background(), "workouts", docstore.Query{})
	assert.ErrorIs(t, err, docstore.ErrCollectionNotFound)
}
