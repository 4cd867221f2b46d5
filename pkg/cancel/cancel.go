// Package cancel is the process-wide broadcast that delivers build
// cancellation requests to in-flight build runs.
package cancel

import (
	"sync"

	"github.com/komodohq/komodo/pkg/types"
)

// Signal pairs the build or repo id being cancelled with the update row
// of the cancel operation itself.
type Signal struct {
	BuildID string
	Update  *types.Update
}

// Subscriber receives every published signal; listeners filter by id.
type Subscriber chan Signal

// Hub fans cancellation signals out to every subscribed build run.
type Hub struct {
	mu          sync.Mutex
	subscribers map[Subscriber]bool
}

// NewHub returns an empty hub. Construct once at startup.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[Subscriber]bool)}
}

// Subscribe registers a listener. Build runs subscribe before starting
// fallible work so a cancel published mid-run is never missed.
func (h *Hub) Subscribe() Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := make(Subscriber, 8)
	h.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes the listener.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sub] {
		delete(h.subscribers, sub)
		close(sub)
	}
}

// Publish delivers the signal to every listener. Delivery is best
// effort: a full listener buffer drops the signal rather than blocking,
// and the publisher's 60 s forced finalize covers the unconsumed case.
func (h *Hub) Publish(sig Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub <- sig:
		default:
		}
	}
}
