package events

import (
	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/state/protocol"
)

type Noop struct{}

var _ protocol.Consumer = (*Noop)(nil)

func NewNoop() *Noop {
	return &Noop{}
}

func (n Noop) BlockExtended(*flow.Block) {}

func (n Noop) BlockFinalized(*flow.Block) {}

func (n Noop) Rebranched([]*flow.Block, []*flow.Block) {}
