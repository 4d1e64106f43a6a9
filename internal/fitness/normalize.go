package fitness

import (
	"sort"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
)

var (
	metricDefaults   = []string{FieldShoulderCm, FieldChestCm, FieldArmCm, FieldWaistCm, FieldWeightKg}
	trainingDefaults = []string{FieldSets, FieldReps, FieldWeightKg}
)

// Normalize returns a copy of doc with the numeric fields older documents
// may lack set to 0. Collections without defaults pass through unchanged.
func Normalize(collection string, doc docstore.Document) docstore.Document {
	var defaults []string
	switch collection {
	case docstore.CollectionMetrics:
		defaults = metricDefaults
	case docstore.CollectionTraining:
		defaults = trainingDefaults
	default:
		return doc
	}

	out := docstore.Clone(doc)
	if out == nil {
		out = docstore.Document{}
	}
	for _, field := range defaults {
		if out[field] == nil {
			out[field] = float64(0)
		}
	}
	return out
}

func NormalizeAll(collection string, docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, len(docs))
	for i, doc := range docs {
		out[i] = Normalize(collection, doc)
	}
	return out
}

// Sort orders docs in place: training and metrics newest date first,
// plan items oldest createdAt first. Unparseable values sort last.
func Sort(collection string, docs []docstore.Document) {
	switch collection {
	case docstore.CollectionTraining, docstore.CollectionMetrics:
		sort.SliceStable(docs, func(i, j int) bool {
			return later(dateValue(docs[i]), dateValue(docs[j]))
		})
	case docstore.CollectionTrainingPlan:
		sort.SliceStable(docs, func(i, j int) bool {
			return earlier(createdAtValue(docs[i]), createdAtValue(docs[j]))
		})
	}
}

func dateValue(doc docstore.Document) time.Time {
	return parseDay(doc.String(FieldDate))
}

func createdAtValue(doc docstore.Document) time.Time {
	t, _ := toTime(doc[docstore.FieldCreatedAt])
	return t
}

func later(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return !a.IsZero() && b.IsZero()
	}
	return a.After(b)
}

func earlier(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return !a.IsZero() && b.IsZero()
	}
	return a.Before(b)
}
