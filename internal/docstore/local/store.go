// Package local implements the fallback document store used when neither
// the native bridge nor the embedded host is reachable. Each collection is
// one JSON array in a key-value area; every operation loads the whole array,
// works on it in memory and writes it back. Concurrent writers are not
// serialized across processes, the last write wins.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2beens/fittrack/internal/docstore"

	log "github.com/sirupsen/logrus"
)

type Store struct {
	area KeyValueArea
	now  func() time.Time
}

func NewStore(area KeyValueArea) *Store {
	return &Store{
		area: area,
		now:  time.Now,
	}
}

func (s *Store) Name() string {
	return "local"
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.area.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, op, collection string) ([]docstore.Document, error) {
	raw, found, err := s.area.Get(ctx, collection)
	if err != nil {
		return nil, docstore.WrapOpError(op, collection, fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err))
	}
	if !found || len(raw) == 0 {
		return []docstore.Document{}, nil
	}

	var docs []docstore.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		log.Errorf("local store: collection [%s] holds invalid json: %s", collection, err)
		return nil, docstore.WrapOpError(op, collection, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err))
	}
	return docs, nil
}

func (s *Store) save(ctx context.Context, op, collection string, docs []docstore.Document) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return docstore.WrapOpError(op, collection, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err))
	}
	if err := s.area.Set(ctx, collection, raw); err != nil {
		return docstore.WrapOpError(op, collection, fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err))
	}
	return nil
}

func (s *Store) Find(ctx context.Context, collection string, query docstore.Query) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(docstore.OpFind, collection); err != nil {
		return nil, err
	}
	docs, err := s.load(ctx, docstore.OpFind, collection)
	if err != nil {
		return nil, err
	}
	return docstore.Filter(docs, query), nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc docstore.Document) (docstore.Document, error) {
	inserted, err := s.insert(ctx, docstore.OpInsert, collection, []docstore.Document{doc})
	if err != nil {
		return nil, err
	}
	return inserted[0], nil
}

func (s *Store) BulkInsert(ctx context.Context, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	return s.insert(ctx, docstore.OpBulkInsert, collection, docs)
}

func (s *Store) insert(ctx context.Context, op, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	if err := docstore.CheckCollection(op, collection); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, op, collection)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inserted := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		inserted = append(inserted, docstore.Stamp(d, now))
	}
	if len(inserted) == 0 {
		return inserted, nil
	}
	if err := docstore.CheckDuplicateIDs(existing, inserted); err != nil {
		return nil, docstore.WrapOpError(op, collection, err)
	}

	if err := s.save(ctx, op, collection, append(existing, inserted...)); err != nil {
		return nil, err
	}
	return canonicalAll(op, collection, inserted)
}

func (s *Store) Update(ctx context.Context, collection string, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpUpdate, collection); err != nil {
		return 0, err
	}
	docs, err := s.load(ctx, docstore.OpUpdate, collection)
	if err != nil {
		return 0, err
	}

	idx := docstore.MatchIndexes(docs, query, opts.Multi)
	if len(idx) == 0 {
		return 0, nil
	}
	now := s.now()
	for _, i := range idx {
		docs[i] = docstore.ApplyUpdate(docs[i], patch, opts.Mode, now)
	}
	if err := s.save(ctx, docstore.OpUpdate, collection, docs); err != nil {
		return 0, err
	}
	return len(idx), nil
}

func (s *Store) Remove(ctx context.Context, collection string, query docstore.Query, opts docstore.RemoveOptions) (int, error) {
	if err := docstore.CheckCollection(docstore.OpRemove, collection); err != nil {
		return 0, err
	}
	docs, err := s.load(ctx, docstore.OpRemove, collection)
	if err != nil {
		return 0, err
	}

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
	if err := s.save(ctx, docstore.OpRemove, collection, kept); err != nil {
		return 0, err
	}
	return len(idx), nil
}

func (s *Store) ClearCollection(ctx context.Context, collection string) (int, error) {
	if err := docstore.CheckCollection(docstore.OpClearCollection, collection); err != nil {
		return 0, err
	}
	docs, err := s.load(ctx, docstore.OpClearCollection, collection)
	if err != nil {
		return 0, err
	}
	if err := s.area.Del(ctx, collection); err != nil {
		return 0, docstore.WrapOpError(docstore.OpClearCollection, collection, fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err))
	}
	return len(docs), nil
}

func canonicalAll(op, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	out := make([]docstore.Document, 0, len(docs))
	for _, d := range docs {
		c, err := docstore.Canonical(d)
		if err != nil {
			return nil, docstore.WrapOpError(op, collection, err)
		}
		out = append(out, c)
	}
	return out, nil
}
