// Package updates is the journal of every initiated operation. Rows are
// opened InProgress, mutated by appending logs, and finalized once; each
// write is broadcast to subscribers.
package updates

import (
	"sync"

	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Subscriber receives a copy of every journal write.
type Subscriber chan *types.Update

// Journal persists updates and fans each write out to subscribers.
type Journal struct {
	store *storage.BoltStore

	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// NewJournal builds the journal over the store. Construct once at
// startup.
func NewJournal(store *storage.BoltStore) *Journal {
	return &Journal{
		store:       store,
		subscribers: make(map[Subscriber]bool),
	}
}

// Subscribe registers a buffered channel receiving every write. Slow
// subscribers skip writes rather than block operations.
func (j *Journal) Subscribe() Subscriber {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub := make(Subscriber, 50)
	j.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes the channel.
func (j *Journal) Unsubscribe(sub Subscriber) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.subscribers[sub] {
		delete(j.subscribers, sub)
		close(sub)
	}
}

func (j *Journal) broadcast(u *types.Update) {
	copied := *u
	copied.Logs = append([]types.Log(nil), u.Logs...)

	j.mu.RLock()
	defer j.mu.RUnlock()
	for sub := range j.subscribers {
		select {
		case sub <- &copied:
		default:
			// subscriber buffer full, skip
		}
	}
}

// Open persists a fresh InProgress row and broadcasts it. Runs after the
// action guard is acquired; failures propagate to the caller since no
// row exists yet.
func (j *Journal) Open(u *types.Update) error {
	u.Status = types.UpdateInProgress
	if err := j.store.CreateUpdate(u); err != nil {
		return err
	}
	metrics.UpdatesStarted.WithLabelValues(string(u.Operation)).Inc()
	metrics.OperationsInFlight.Inc()
	j.broadcast(u)
	return nil
}

// Push flushes the row as it stands, logs included. Storage failures are
// logged and swallowed so an operation mid-flight keeps its logs in
// memory and retries at the next flush.
func (j *Journal) Push(u *types.Update) {
	if err := j.store.SaveUpdate(u); err != nil {
		logger := log.WithUpdate(u.ID)
		logger.Error().Err(err).Msg("failed to flush update")
	}
	j.broadcast(u)
}

// Finalize computes overall success, stamps the end time, marks the row
// Complete and flushes once more.
func (j *Journal) Finalize(u *types.Update) {
	u.Finalize()
	outcome := "success"
	if !u.Success {
		outcome = "failure"
	}
	metrics.UpdatesCompleted.WithLabelValues(string(u.Operation), outcome).Inc()
	metrics.OperationsInFlight.Dec()
	if err := j.store.SaveUpdate(u); err != nil {
		logger := log.WithUpdate(u.ID)
		logger.Error().Err(err).Msg("failed to finalize update")
	}
	j.broadcast(u)
}
