// Package pulls coalesces concurrent image pulls. Pulls of the same
// image on the same server serialize on a per-key mutex, and results are
// answered from a short cache window so deploy bursts sharing base
// images issue one PullImage RPC.
package pulls

import (
	"context"
	"sync"
	"time"

	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/types"
)

// Window is how long a pull result answers subsequent requests.
const Window = 5 * time.Second

type key struct {
	serverID string
	image    string
}

type entry struct {
	mu     sync.Mutex
	lastTS time.Time
	result types.Log
	err    error
}

// Cache is the process-wide pull dedup cache. Construct once at startup.
type Cache struct {
	mu      sync.Mutex
	entries map[key]*entry
	now     func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[key]*entry),
		now:     time.Now,
	}
}

func (c *Cache) entryFor(serverID, image string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{serverID: serverID, image: image}
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	return e
}

// Pull serializes on the (server, image) key, answers from the cache
// when the last pull landed inside the window, and otherwise invokes
// pull and stores its result.
func (c *Cache) Pull(ctx context.Context, serverID, image string, pull func(context.Context) (types.Log, error)) (types.Log, error) {
	e := c.entryFor(serverID, image)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastTS.IsZero() && c.now().Sub(e.lastTS) < Window {
		metrics.PullCacheHits.Inc()
		return e.result, e.err
	}

	metrics.PullCacheMisses.Inc()
	result, err := pull(ctx)
	e.lastTS = c.now()
	e.result = result
	e.err = err
	return result, err
}
