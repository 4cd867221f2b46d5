// Package alerts persists events of note and fans them out to delivery
// subscribers. Delivery transports run out of process; the core only
// records alerts and publishes them.
package alerts

import (
	"sync"

	"github.com/komodohq/komodo/pkg/log"
	"github.com/komodohq/komodo/pkg/metrics"
	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Subscriber receives a copy of every opened alert.
type Subscriber chan *types.Alert

// Broker persists and broadcasts alerts.
type Broker struct {
	store *storage.BoltStore

	mu          sync.RWMutex
	subscribers map[Subscriber]bool
}

// NewBroker builds the broker over the store. Construct once at startup.
func NewBroker(store *storage.BoltStore) *Broker {
	return &Broker{
		store:       store,
		subscribers: make(map[Subscriber]bool),
	}
}

// Subscribe registers a buffered channel receiving every opened alert.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes the channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Open persists a new alert and publishes it. Storage failures are
// logged and swallowed: alerting never aborts the operation that raised
// the alert.
func (b *Broker) Open(a *types.Alert) {
	if err := b.store.SaveAlert(a); err != nil {
		logger := log.WithComponent("alerts")
		logger.Error().Err(err).
			Str("message", a.Message).Msg("failed to persist alert")
	}
	b.refreshOpenGauge()

	copied := *a
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- &copied:
		default:
		}
	}
}

// Warning opens a Warning alert on the target.
func (b *Broker) Warning(target types.ResourceTarget, message string, data map[string]string) {
	b.Open(&types.Alert{
		Level:   types.AlertWarning,
		Target:  target,
		Message: message,
		Data:    data,
	})
}

// Critical opens a Critical alert on the target. Teardown failures land
// here; they must never be silent.
func (b *Broker) Critical(target types.ResourceTarget, message string, data map[string]string) {
	b.Open(&types.Alert{
		Level:   types.AlertCritical,
		Target:  target,
		Message: message,
		Data:    data,
	})
}

// Resolve marks an alert resolved.
func (b *Broker) Resolve(id string) error {
	a, err := b.store.GetAlert(id)
	if err != nil {
		return err
	}
	a.Resolved = true
	if err := b.store.SaveAlert(a); err != nil {
		return err
	}
	b.refreshOpenGauge()
	return nil
}

func (b *Broker) refreshOpenGauge() {
	open, err := b.store.ListAlerts(true)
	if err != nil {
		return
	}
	metrics.AlertsOpen.Set(float64(len(open)))
}
