// Package docstore defines the document store capability shared by every
// persistence backend: named collections of schemaless documents with
// simple equality queries.
package docstore

import (
	"context"
)

const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

const (
	CollectionTraining     = "training"
	CollectionMetrics      = "metrics"
	CollectionTrainingPlan = "trainingPlan"
	CollectionTheme        = "theme"
)

// Collections lists every registered collection name.
var Collections = []string{
	CollectionTraining,
	CollectionMetrics,
	CollectionTrainingPlan,
	CollectionTheme,
}

// DataCollections are the collections holding user data, as opposed to settings.
var DataCollections = []string{
	CollectionTraining,
	CollectionMetrics,
	CollectionTrainingPlan,
}

func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Document is a flat field mapping. Values are JSON compatible.
type Document map[string]any

// Query is a field equality mapping; an empty query matches everything.
type Query map[string]any

func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

type UpdateMode int

const (
	// ModeReplace swaps the whole document body for the patch, keeping _id and createdAt.
	ModeReplace UpdateMode = iota
	// ModePatch sets only the fields present in the patch.
	ModePatch
)

func (m UpdateMode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModePatch:
		return "patch"
	default:
		return "unknown"
	}
}

type UpdateOptions struct {
	Multi bool       `json:"multi"`
	Mode  UpdateMode `json:"mode"`
}

type RemoveOptions struct {
	Multi bool `json:"multi"`
}

//go:generate mockgen -source=$GOFILE -destination=docstoretest/mock_store.go -package=docstoretest

// Store is implemented by every backend variant.
// Results of Find carry no guaranteed order.
type Store interface {
	Name() string
	Ping(ctx context.Context) error
	Find(ctx context.Context, collection string, query Query) ([]Document, error)
	Insert(ctx context.Context, collection string, doc Document) (Document, error)
	Update(ctx context.Context, collection string, query Query, patch Document, opts UpdateOptions) (int, error)
	Remove(ctx context.Context, collection string, query Query, opts RemoveOptions) (int, error)
	ClearCollection(ctx context.Context, collection string) (int, error)
	BulkInsert(ctx context.Context, collection string, docs []Document) ([]Document, error)
}
