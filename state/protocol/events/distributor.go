package events

import (
	"sync"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/state/protocol"
)

// Distributor distributes chain events to a list of subscribers.
type Distributor struct {
	subscribers []protocol.Consumer
	mu          sync.RWMutex
}

var _ protocol.Consumer = (*Distributor)(nil)

// NewDistributor returns a new events distributor.
func NewDistributor() *Distributor {
	return &Distributor{}
}

func (d *Distributor) AddConsumer(consumer protocol.Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, consumer)
}

func (d *Distributor) BlockExtended(block *flow.Block) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers {
		sub.BlockExtended(block)
	}
}

func (d *Distributor) BlockFinalized(block *flow.Block) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers {
		sub.BlockFinalized(block)
	}
}

func (d *Distributor) Rebranched(reverted []*flow.Block, adopted []*flow.Block) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers {
		sub.Rebranched(reverted, adopted)
	}
}
