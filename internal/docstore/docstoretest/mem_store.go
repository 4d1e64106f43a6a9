package docstoretest

import (
	"context"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
)

// MemStore is an in-memory Store for tests of code sitting on top of a store.
// Errors put into FailOn are returned by the named operation.
type MemStore struct {
	mutex       sync.Mutex
	collections map[string][]docstore.Document
	FailOn      map[string]error
	Now         func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string][]docstore.Document),
		FailOn:      make(map[string]error),
		Now:         time.Now,
	}
}

func (s *MemStore) Name() string {
	return "memory"
}

func (s *MemStore) Fail(op string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FailOn[op] = err
}

func (s *MemStore) check(op, collection string) error {
	if err := docstore.CheckCollection(op, collection); err != nil {
		return err
	}
	if err, ok := s.FailOn[op]; ok && err != nil {
		return docstore.WrapOpError(op, collection, err)
	}
	return nil
}

func (s *MemStore) Ping(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.FailOn[docstore.OpPing]; err != nil {
		return err
	}
	return nil
}

func (s *MemStore) Find(_ context.Context, collection string, query docstore.Query) ([]docstore.Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpFind, collection); err != nil {
		return nil, err
	}
	return docstore.CloneAll(docstore.Filter(s.collections[collection], query)), nil
}

func (s *MemStore) Insert(_ context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpInsert, collection); err != nil {
		return nil, err
	}
	stored, err := docstore.Canonical(docstore.Stamp(doc, s.Now()))
	if err != nil {
		return nil, docstore.WrapOpError(docstore.OpInsert, collection, err)
	}
	if err := docstore.CheckDuplicateIDs(s.collections[collection], []docstore.Document{stored}); err != nil {
		return nil, docstore.WrapOpError(docstore.OpInsert, collection, err)
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return docstore.Clone(stored), nil
}

func (s *MemStore) Update(_ context.Context, collection string, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpUpdate, collection); err != nil {
		return 0, err
	}
	docs := s.collections[collection]
	idx := docstore.MatchIndexes(docs, query, opts.Multi)
	for _, i := range idx {
		updated, err := docstore.Canonical(docstore.ApplyUpdate(docs[i], patch, opts.Mode, s.Now()))
		if err != nil {
			return 0, docstore.WrapOpError(docstore.OpUpdate, collection, err)
		}
		docs[i] = updated
	}
	return len(idx), nil
}

func (s *MemStore) Remove(_ context.Context, collection string, query docstore.Query, opts docstore.RemoveOptions) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpRemove, collection); err != nil {
		return 0, err
	}
	docs := s.collections[collection]
	idx := docstore.MatchIndexes(docs, query, opts.Multi)
	if len(idx) == 0 {
		return 0, nil
	}
	removed := make(map[int]bool, len(idx))
	for _, i := range idx {
		removed[i] = true
	}
	kept := make([]docstore.Document, 0, len(docs)-len(idx))
	for i, d := range docs {
		if !removed[i] {
			kept = append(kept, d)
		}
	}
	s.collections[collection] = kept
	return len(idx), nil
}

func (s *MemStore) ClearCollection(_ context.Context, collection string) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpClearCollection, collection); err != nil {
		return 0, err
	}
	n := len(s.collections[collection])
	delete(s.collections, collection)
	return n, nil
}

func (s *MemStore) BulkInsert(_ context.Context, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.check(docstore.OpBulkInsert, collection); err != nil {
		return nil, err
	}
	now := s.Now()
	inserted := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		stored, err := docstore.Canonical(docstore.Stamp(d, now))
		if err != nil {
			return nil, docstore.WrapOpError(docstore.OpBulkInsert, collection, err)
		}
		inserted = append(inserted, stored)
	}
	if err := docstore.CheckDuplicateIDs(s.collections[collection], inserted); err != nil {
		return nil, docstore.WrapOpError(docstore.OpBulkInsert, collection, err)
	}
	s.collections[collection] = append(s.collections[collection], inserted...)
	return docstore.CloneAll(inserted), nil
}

// Len returns the number of documents in a collection.
func (s *MemStore) Len(collection string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.collections[collection])
}
