package protocol

import (
	"github.com/onflow/pos-sync/model/flow"
)

// Consumer receives chain events after the corresponding state change was
// committed. Implementations must be non-blocking.
type Consumer interface {

	// BlockExtended is called when a block became the new head.
	BlockExtended(block *flow.Block)

	// BlockFinalized is called when a macro block became the new head.
	BlockFinalized(block *flow.Block)

	// Rebranched is called when the main chain switched to a fork. Both lists
	// are in chain order. Adopted is empty if the fork failed to apply and the
	// chain stopped at the common ancestor.
	Rebranched(reverted []*flow.Block, adopted []*flow.Block)
}
