package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2beens/fittrack/internal/docstore"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type commandHandler struct {
	repo           Repo
	cache          *findCache
	metricsManager *metrics.Manager
	now            func() time.Time
}

func newCommandHandler(repo Repo, cache *findCache, metricsManager *metrics.Manager) *commandHandler {
	return &commandHandler{
		repo:           repo,
		cache:          cache,
		metricsManager: metricsManager,
		now:            time.Now,
	}
}

func (h *commandHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	command := mux.Vars(r)["command"]
	op, ok := commandOps[command]
	if !ok {
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}

	var args commandArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeCommandError(w, command, fmt.Errorf("%w: decode args: %s", docstore.ErrInvalidDocument, err))
		return
	}

	result, err := h.run(r.Context(), op, args)
	if err != nil {
		writeCommandError(w, command, err)
		return
	}

	resultJson, err := json.Marshal(result)
	if err != nil {
		log.Errorf("bridge command [%s]: marshal result: %s", command, err)
		http.Error(w, "marshal result", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponse(w, http.StatusOK, resultJson)
}

func writeCommandError(w http.ResponseWriter, command string, err error) {
	code := docstore.ErrorCode(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		log.Errorf("bridge command [%s]: %s", command, err)
	} else {
		log.Debugf("bridge command [%s]: %s", command, err)
	}

	errJson, marshalErr := json.Marshal(commandError{Code: code, Error: err.Error()})
	if marshalErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	pkg.WriteJSONResponse(w, status, errJson)
}

func (h *commandHandler) run(ctx context.Context, op string, args commandArgs) (any, error) {
	if op == docstore.OpPing {
		if err := h.repo.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s", docstore.ErrBackendUnavailable, err)
		}
		return "pong", nil
	}

	if err := docstore.CheckCollection(op, args.Collection); err != nil {
		return nil, err
	}

	switch op {
	case docstore.OpFind:
		return h.find(ctx, args.Collection, args.Query)
	case docstore.OpInsert:
		docs, err := h.insert(ctx, args.Collection, []docstore.Document{args.Doc})
		if err != nil {
			return nil, err
		}
		return docs[0], nil
	case docstore.OpBulkInsert:
		if len(args.Docs) == 0 {
			return []docstore.Document{}, nil
		}
		return h.insert(ctx, args.Collection, args.Docs)
	case docstore.OpUpdate:
		defer h.cache.invalidate(args.Collection)
		return h.repo.Update(ctx, args.Collection, args.Query, args.Update, args.Options, h.now())
	case docstore.OpRemove:
		defer h.cache.invalidate(args.Collection)
		return h.repo.Remove(ctx, args.Collection, args.Query, args.Options.Multi)
	case docstore.OpClearCollection:
		defer h.cache.invalidate(args.Collection)
		return h.repo.Clear(ctx, args.Collection)
	default:
		return nil, fmt.Errorf("%w: unsupported op %s", docstore.ErrInvalidDocument, op)
	}
}

func (h *commandHandler) find(ctx context.Context, collection string, query docstore.Query) ([]docstore.Document, error) {
	key, cacheable := h.cache.key(collection, query)
	if cacheable {
		if docs, found := h.cache.get(key); found {
			h.metricsManager.CounterFindCacheHits.Inc()
			return docs, nil
		}
	}

	docs, err := h.repo.Find(ctx, collection, query)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []docstore.Document{}
	}

	if cacheable {
		h.cache.set(key, docs)
	}
	return docs, nil
}

func (h *commandHandler) insert(ctx context.Context, collection string, docs []docstore.Document) ([]docstore.Document, error) {
	defer h.cache.invalidate(collection)

	now := h.now()
	stamped := make([]docstore.Document, 0, len(docs))
	for _, doc := range docs {
		canonical, err := docstore.Canonical(doc)
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, docstore.Stamp(canonical, now))
	}
	if err := docstore.CheckDuplicateIDs(nil, stamped); err != nil {
		return nil, err
	}

	if err := h.repo.Insert(ctx, collection, stamped); err != nil {
		return nil, err
	}
	return stamped, nil
}
