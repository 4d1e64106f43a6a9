package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/2beens/fittrack/internal/docstore"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const megabyte = 1024 * 1024

// findCache keeps find results per collection and query. A write to a
// collection bumps its generation, so older entries are never read again
// and age out of freecache on their own.
type findCache struct {
	cache      *freecache.Cache
	ttlSeconds int

	mutex       sync.Mutex
	generations map[string]uint64
}

func newFindCache(sizeMB, ttlSeconds int) *findCache {
	if sizeMB <= 0 {
		sizeMB = 8
	}
	return &findCache{
		cache:       freecache.NewCache(sizeMB * megabyte),
		ttlSeconds:  ttlSeconds,
		generations: make(map[string]uint64),
	}
}

func (c *findCache) key(collection string, query docstore.Query) ([]byte, bool) {
	// map keys are marshalled sorted, equal queries give equal keys
	queryJson, err := json.Marshal(query)
	if err != nil {
		return nil, false
	}

	c.mutex.Lock()
	gen := c.generations[collection]
	c.mutex.Unlock()

	return []byte(fmt.Sprintf("%s::%d::%s", collection, gen, queryJson)), true
}

// get and set take the key computed before reading the repo; a write in
// between moves the generation on and the stored result is never served.
func (c *findCache) get(key []byte) ([]docstore.Document, bool) {
	cached, err := c.cache.Get(key)
	if err != nil {
		return nil, false
	}

	var docs []docstore.Document
	if err := json.Unmarshal(cached, &docs); err != nil {
		log.Errorf("find cache: unmarshal cached docs for [%s]: %s", key, err)
		return nil, false
	}
	return docs, true
}

func (c *findCache) set(key []byte, docs []docstore.Document) {
	docsJson, err := json.Marshal(docs)
	if err != nil {
		log.Errorf("find cache: marshal docs for [%s]: %s", key, err)
		return
	}
	if err := c.cache.Set(key, docsJson, c.ttlSeconds); err != nil {
		log.Debugf("find cache: set [%s]: %s", key, err)
	}
}

func (c *findCache) invalidate(collection string) {
	c.mutex.Lock()
	c.generations[collection]++
	c.mutex.Unlock()
}
