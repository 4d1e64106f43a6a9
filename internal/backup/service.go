// Package backup exports, imports and resets the user data collections.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const BundleVersion = 1

var ErrInvalidBundle = errors.New("invalid backup bundle")

// Bundle is the exported form of the data collections.
type Bundle struct {
	Version     int                            `json:"version"`
	ExportedAt  time.Time                      `json:"exportedAt"`
	Collections map[string][]docstore.Document `json:"collections"`
}

// Refresher is told which collections were rewritten.
type Refresher interface {
	Refresh(collections ...string)
}

type Service struct {
	store     docstore.Store
	refresher Refresher
	now       func() time.Time
}

func NewService(store docstore.Store, refresher Refresher) *Service {
	return &Service{
		store:     store,
		refresher: refresher,
		now:       time.Now,
	}
}

func (s *Service) refresh(collections ...string) {
	if s.refresher != nil && len(collections) > 0 {
		s.refresher.Refresh(collections...)
	}
}

func (s *Service) Export(ctx context.Context) (_ *Bundle, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.export")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	bundle := &Bundle{
		Version:     BundleVersion,
		ExportedAt:  s.now().UTC(),
		Collections: make(map[string][]docstore.Document, len(docstore.Collections)),
	}
	for _, coll := range docstore.Collections {
		docs, err := s.store.Find(ctx, coll, docstore.Query{})
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", coll, err)
		}
		if docs == nil {
			docs = []docstore.Document{}
		}
		bundle.Collections[coll] = docs
	}
	return bundle, nil
}

// Validate checks collection names and ids before anything gets written.
func (b *Bundle) Validate() error {
	if b.Version != BundleVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidBundle, b.Version)
	}
	for coll, docs := range b.Collections {
		if !docstore.IsCollection(coll) {
			return fmt.Errorf("%w: %w: %s", ErrInvalidBundle, docstore.ErrCollectionNotFound, coll)
		}
		// documents without an id get one on insert
		var withID []docstore.Document
		for _, doc := range docs {
			if doc.ID() != "" {
				withID = append(withID, doc)
			}
		}
		if err := docstore.CheckDuplicateIDs(nil, withID); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidBundle, coll, err)
		}
	}
	return nil
}

// Import replaces every collection present in the bundle with its documents.
// Collections missing from the bundle are left alone.
func (s *Service) Import(ctx context.Context, bundle *Bundle) (_ map[string]int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.import")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := bundle.Validate(); err != nil {
		return nil, err
	}

	imported := make(map[string]int, len(bundle.Collections))
	var touched []string
	defer func() {
		s.refresh(touched...)
	}()

	// fixed order, so a failure always leaves the same collections behind
	for _, coll := range docstore.Collections {
		docs, ok := bundle.Collections[coll]
		if !ok {
			continue
		}
		touched = append(touched, coll)
		if _, err := s.store.ClearCollection(ctx, coll); err != nil {
			return imported, fmt.Errorf("import %s: %w", coll, err)
		}
		if len(docs) == 0 {
			imported[coll] = 0
			continue
		}
		inserted, err := s.store.BulkInsert(ctx, coll, docs)
		if err != nil {
			return imported, fmt.Errorf("import %s: %w", coll, err)
		}
		imported[coll] = len(inserted)
		log.Debugf("backup: imported %d documents into %s", len(inserted), coll)
	}
	return imported, nil
}

// Reset clears the data collections. Settings stay.
// Every collection is attempted and the failures are combined.
func (s *Service) Reset(ctx context.Context) (_ map[string]int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.reset")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	removed := make(map[string]int, len(docstore.DataCollections))
	var cleared []string
	for _, coll := range docstore.DataCollections {
		n, clearErr := s.store.ClearCollection(ctx, coll)
		if clearErr != nil {
			err = multierr.Append(err, fmt.Errorf("reset %s: %w", coll, clearErr))
			continue
		}
		removed[coll] = n
		cleared = append(cleared, coll)
	}
	s.refresh(cleared...)
	log.Infof("backup: reset removed %v", removed)
	return removed, err
}

func (b *Bundle) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(b)
}

func ReadBundle(r io.Reader) (*Bundle, error) {
	var bundle Bundle
	if err := json.NewDecoder(r).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	if bundle.Collections == nil {
		bundle.Collections = map[string][]docstore.Document{}
	}
	return &bundle, nil
}
