package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/telemetry/metrics"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const connDeadline = time.Minute

type HostConfig struct {
	// DataDir holds one badger directory per collection.
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// Host is the privileged process side of the embedded store. It owns the
// collection databases and serves store operations over a unix socket.
type Host struct {
	dbs            map[string]*badger.DB
	metricsManager *metrics.Manager
	now            func() time.Time

	// serializes mutations, so read-modify-write never conflicts
	writeMutex sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHost(cfg HostConfig, metricsManager *metrics.Manager) (*Host, error) {
	h := &Host{
		dbs:            make(map[string]*badger.DB, len(docstore.Collections)),
		metricsManager: metricsManager,
		now:            time.Now,
	}

	for _, coll := range docstore.Collections {
		db, err := openDB(DBConfig{
			Path:       filepath.Join(cfg.DataDir, coll),
			InMemory:   cfg.InMemory,
			SyncWrites: cfg.SyncWrites,
		})
		if err != nil {
			closeErr := h.closeDBs()
			return nil, multierr.Append(fmt.Errorf("open collection %s: %w", coll, err), closeErr)
		}
		h.dbs[coll] = db
	}

	return h, nil
}

// Listen binds the unix socket and serves connections until ctx is done or Close is called.
func (h *Host) Listen(ctx context.Context, socketPath string) (net.Addr, error) {
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("binding to unix socket %s: %w", socketPath, err)
	}

	if err := os.Chmod(socketPath, os.ModeSocket|0660); err != nil {
		_ = listener.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-ctx.Done()
		log.Debugln("embedded host context done, closing listener")
		_ = listener.Close()
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
					log.Errorf("embedded host conn accept: %s", err)
				}
				return
			}

			if err := conn.SetDeadline(time.Now().Add(connDeadline)); err != nil {
				log.Errorf("embedded host, set conn deadline: %s", err)
				_ = conn.Close()
				continue
			}

			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				h.serveConn(conn)
			}()
		}
	}()

	log.Infof("embedded document host listening on [%s]", socketPath)
	return listener.Addr(), nil
}

func (h *Host) serveConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var req request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Errorf("embedded host, decode request: %s", err)
		h.writeResponse(conn, errorResponse(fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)))
		return
	}

	begin := time.Now()
	resp := h.handle(req)
	if h.metricsManager != nil {
		h.metricsManager.HistHostMessageDuration.WithLabelValues(req.Op).Observe(time.Since(begin).Seconds())
	}

	h.writeResponse(conn, resp)
}

func (h *Host) writeResponse(conn net.Conn, resp response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Errorf("embedded host, send response: %s", err)
	}
}

func (h *Host) handle(req request) response {
	if req.Op == docstore.OpPing {
		return response{}
	}

	db, err := h.db(req.Op, req.Collection)
	if err != nil {
		return errorResponse(err)
	}

	switch req.Op {
	case docstore.OpFind:
		docs, err := findDocs(db, req.Query)
		if err != nil {
			return errorResponse(err)
		}
		return response{Docs: docs, Count: len(docs)}
	case docstore.OpInsert:
		inserted, err := h.insert(db, []docstore.Document{req.Doc})
		if err != nil {
			return errorResponse(err)
		}
		return response{Doc: inserted[0], Count: 1}
	case docstore.OpBulkInsert:
		inserted, err := h.insert(db, req.Docs)
		if err != nil {
			return errorResponse(err)
		}
		return response{Docs: inserted, Count: len(inserted)}
	case docstore.OpUpdate:
		n, err := h.update(db, req.Query, req.Patch, docstore.UpdateOptions{Multi: req.Multi, Mode: req.Mode})
		if err != nil {
			return errorResponse(err)
		}
		return response{Count: n}
	case docstore.OpRemove:
		n, err := h.remove(db, req.Query, req.Multi)
		if err != nil {
			return errorResponse(err)
		}
		return response{Count: n}
	case docstore.OpClearCollection:
		n, err := h.clear(db)
		if err != nil {
			return errorResponse(err)
		}
		return response{Count: n}
	default:
		return errorResponse(fmt.Errorf("%w: unknown op %q", docstore.ErrInvalidDocument, req.Op))
	}
}

func (h *Host) db(op, collection string) (*badger.DB, error) {
	if err := docstore.CheckCollection(op, collection); err != nil {
		return nil, err
	}
	db, ok := h.dbs[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", docstore.ErrCollectionNotFound, collection)
	}
	return db, nil
}

func findDocs(db *badger.DB, query docstore.Query) ([]docstore.Document, error) {
	docs := []docstore.Document{}
	err := db.View(func(txn *badger.Txn) error {
		return iterate(txn, func(_ []byte, doc docstore.Document) error {
			if docstore.Matches(doc, query) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	return docs, err
}

// iterate calls fn for every document; fn must not keep the key past the call.
func iterate(txn *badger.Txn, fn func(key []byte, doc docstore.Document) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var doc docstore.Document
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return fmt.Errorf("decode document %s: %w", item.Key(), err)
		}
		if err := fn(item.Key(), doc); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) insert(db *badger.DB, docs []docstore.Document) ([]docstore.Document, error) {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	now := h.now()
	inserted := make([]docstore.Document, 0, len(docs))
	encoded := make([][]byte, 0, len(docs))
	for _, d := range docs {
		stamped, err := docstore.Canonical(docstore.Stamp(d, now))
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(stamped)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
		}
		inserted = append(inserted, stamped)
		encoded = append(encoded, raw)
	}
	if len(inserted) == 0 {
		return inserted, nil
	}

	err := db.View(func(txn *badger.Txn) error {
		seen := make(map[string]bool, len(inserted))
		for _, d := range inserted {
			id := d.ID()
			if seen[id] {
				return fmt.Errorf("%w: %s", docstore.ErrDuplicateID, id)
			}
			seen[id] = true
			_, err := txn.Get([]byte(id))
			if err == nil {
				return fmt.Errorf("%w: %s", docstore.ErrDuplicateID, id)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for i, d := range inserted {
		if err := wb.Set([]byte(d.ID()), encoded[i]); err != nil {
			return nil, err
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, err
	}

	return inserted, nil
}

func (h *Host) update(db *badger.DB, query docstore.Query, patch docstore.Document, opts docstore.UpdateOptions) (int, error) {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	now := h.now()
	updated := 0
	err := db.Update(func(txn *badger.Txn) error {
		type change struct {
			key []byte
			val []byte
		}
		var changes []change
		err := iterate(txn, func(key []byte, doc docstore.Document) error {
			if !docstore.Matches(doc, query) || (!opts.Multi && len(changes) == 1) {
				return nil
			}
			raw, err := json.Marshal(docstore.ApplyUpdate(doc, patch, opts.Mode, now))
			if err != nil {
				return fmt.Errorf("%w: %s", docstore.ErrInvalidDocument, err)
			}
			changes = append(changes, change{key: append([]byte{}, key...), val: raw})
			return nil
		})
		if err != nil {
			return err
		}
		for _, c := range changes {
			if err := txn.Set(c.key, c.val); err != nil {
				return err
			}
		}
		updated = len(changes)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (h *Host) remove(db *badger.DB, query docstore.Query, multi bool) (int, error) {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	removed := 0
	err := db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		err := iterate(txn, func(key []byte, doc docstore.Document) error {
			if !docstore.Matches(doc, query) || (!multi && len(keys) == 1) {
				return nil
			}
			keys = append(keys, append([]byte{}, key...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (h *Host) clear(db *badger.DB) (int, error) {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()

	count := 0
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if err := db.DropAll(); err != nil {
		return 0, err
	}
	return count, nil
}

// Close stops serving, waits for in-flight connections and closes the databases.
func (h *Host) Close() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
	return h.closeDBs()
}

func (h *Host) closeDBs() error {
	var err error
	for coll, db := range h.dbs {
		if closeErr := db.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close collection %s: %w", coll, closeErr))
		}
		delete(h.dbs, coll)
	}
	return err
}
