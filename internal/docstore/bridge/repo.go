package bridge

import (
	"context"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
)

//go:generate mockgen -source=$GOFILE -destination=repo_mocks_test.go -package=bridge_test

// Repo persists the documents behind the bridge commands.
// Documents handed to Insert are already stamped.
type Repo interface {
	Ping(ctx context.Context) error
	Find(ctx context.Context, collection string, query docstore.Query) ([]docstore.Document, error)
	Insert(ctx context.Context, collection string, docs []docstore.Document) error
	Update(ctx context.Context, collection string, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions, now time.Time) (int, error)
	Remove(ctx context.Context, collection string, query docstore.Query, multi bool) (int, error)
	Clear(ctx context.Context, collection string) (int, error)
}
