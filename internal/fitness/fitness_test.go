package fitness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fittrack/internal/docstore"
)

func TestNormalize(t *testing.T) {
	metric := Normalize(docstore.CollectionMetrics, docstore.Document{
		"_id":        "m1",
		"date":       "2024-05-01",
		"shoulderCm": 110.0,
		"waistCm":    nil,
	})
	assert.Equal(t, 110.0, metric[FieldShoulderCm])
	assert.Equal(t, 0.0, metric[FieldWaistCm])
	assert.Equal(t, 0.0, metric[FieldChestCm])
	assert.Equal(t, 0.0, metric[FieldArmCm])
	assert.Equal(t, 0.0, metric[FieldWeightKg])

	original := docstore.Document{"_id": "t1", "activity": "Squat", "reps": 5.0}
	training := Normalize(docstore.CollectionTraining, original)
	assert.Equal(t, 5.0, training[FieldReps])
	assert.Equal(t, 0.0, training[FieldSets])
	assert.Equal(t, 0.0, training[FieldWeightKg])
	// the cached document is never changed in place
	assert.NotContains(t, original, FieldSets)

	plan := docstore.Document{"_id": "p1", "title": "Squat"}
	assert.Equal(t, plan, Normalize(docstore.CollectionTrainingPlan, plan))
}

func TestSort(t *testing.T) {
	training := []docstore.Document{
		{"_id": "a", "date": "2024-05-01"},
		{"_id": "b", "date": "not a date"},
		{"_id": "c", "date": "2024-06-10"},
		{"_id": "d", "date": "2024-05-20"},
	}
	Sort(docstore.CollectionTraining, training)
	assert.Equal(t, []string{"c", "d", "a", "b"}, ids(training))

	plan := []docstore.Document{
		{"_id": "p2", "createdAt": "2024-05-02T10:00:00Z"},
		{"_id": "p3"},
		{"_id": "p1", "createdAt": "2024-05-01T10:00:00Z"},
	}
	Sort(docstore.CollectionTrainingPlan, plan)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(plan))
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID()
	}
	return out
}

func TestTrainingRecordFromDocument(t *testing.T) {
	r, err := TrainingRecordFromDocument(docstore.Document{
		"_id":       "t1",
		"type":      "Weightlifting",
		"activity":  "Bench Press (machine)",
		"date":      "2024-05-01",
		"sets":      3.0,
		"reps":      "8",
		"weightKg":  "62.5",
		"notes":     "",
		"completed": true,
		"createdAt": "2024-05-01T18:30:00Z",
		"updatedAt": "garbage",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", r.ID)
	assert.Equal(t, 3, r.Sets)
	assert.Equal(t, 8, r.Reps)
	assert.Equal(t, 62.5, r.WeightKg)
	assert.True(t, r.Completed)
	assert.True(t, time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC).Equal(r.CreatedAt))
	assert.True(t, r.UpdatedAt.IsZero())
	assert.True(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Equal(r.Day()))

	_, err = TrainingRecordFromDocument(docstore.Document{"activity": 42.0})
	assert.ErrorIs(t, err, docstore.ErrInvalidDocument)
}

func TestPlanItemRoundTrip(t *testing.T) {
	weight, sets, reps := 80.0, 5, 5
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	item := TrainingPlanItem{
		Title:     "Squat",
		DueDate:   &due,
		Repeat:    RepeatWeekly,
		WeightKg:  &weight,
		Sets:      &sets,
		Reps:      &reps,
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}

	doc, err := item.Document()
	require.NoError(t, err)
	assert.NotContains(t, doc, docstore.FieldID)
	assert.NotContains(t, doc, docstore.FieldUpdatedAt)
	assert.NotContains(t, doc, FieldReminder)
	assert.NotContains(t, doc, FieldRelatedRecordID)
	assert.Equal(t, false, doc[FieldCompleted])
	assert.Equal(t, "2024-05-01T08:00:00Z", doc[docstore.FieldCreatedAt])

	doc[docstore.FieldID] = "p1"
	back, err := PlanItemFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "p1", back.ID)
	assert.False(t, back.Linked())
	require.NotNil(t, back.Sets)
	assert.Equal(t, 5, *back.Sets)
	require.NotNil(t, back.DueDate)
	assert.True(t, due.Equal(*back.DueDate))
}

func TestPlanItemFromDocument_UnixMillis(t *testing.T) {
	p, err := PlanItemFromDocument(docstore.Document{
		"_id":             "p1",
		"title":           "Row",
		"completed":       true,
		"relatedRecordId": "t9",
		"reminder":        float64(1714550400000),
	})
	require.NoError(t, err)
	assert.True(t, p.Linked())
	require.NotNil(t, p.Reminder)
	assert.True(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).Equal(*p.Reminder))
}

func TestRecordsSkipInvalid(t *testing.T) {
	docs := []docstore.Document{
		{"_id": "m1", "date": "2024-05-01", "weightKg": 75.0},
		{"_id": "m2", "date": 20240501.0},
	}
	metrics := MetricRecords(docs)
	require.Len(t, metrics, 1)
	assert.Equal(t, "m1", metrics[0].ID)
}
