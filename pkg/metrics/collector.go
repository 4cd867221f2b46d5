package metrics

import (
	"time"

	"github.com/komodohq/komodo/pkg/storage"
	"github.com/komodohq/komodo/pkg/types"
)

// Collector periodically derives inventory gauges from the store.
type Collector struct {
	store  *storage.BoltStore
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store *storage.BoltStore) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectResourceCounts()
	c.collectAlertCounts()
}

func (c *Collector) collectResourceCounts() {
	for _, kind := range types.AllResourceKinds {
		names, err := c.store.ResourceNames(kind)
		if err != nil {
			continue
		}
		ResourcesTotal.WithLabelValues(string(kind)).Set(float64(len(names)))
	}
}

func (c *Collector) collectAlertCounts() {
	alerts, err := c.store.ListAlerts(true)
	if err != nil {
		return
	}
	AlertsOpen.Set(float64(len(alerts)))
}
