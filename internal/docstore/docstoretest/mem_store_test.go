package docstoretest

import (
	"testing"

	"github.com/2beens/fittrack/internal/docstore"
)

func TestMemStore(t *testing.T) {
	RunStoreSuite(t, func(t *testing.T) docstore.Store {
		return NewMemStore()
	})
}
