package protocol

import (
	"github.com/onflow/pos-sync/model/flow"
)

// State gives read access to the local chain.
type State interface {
	ChainView

	// HeadID returns the ID of the main chain head.
	HeadID() flow.Identifier

	// BlocksBackward returns up to count ancestors of the start block, newest first.
	BlocksBackward(startID flow.Identifier, count uint32, includeBody bool) ([]*flow.Block, error)

	// BlockLocators returns the main chain block IDs from the head back to the
	// last macro block, both inclusive, newest first.
	BlockLocators() ([]flow.Identifier, error)
}

// MutableState is the chain state extended through pushes. Pushes must be
// issued by a single goroutine.
type MutableState interface {
	State

	// Push applies a single block to the chain.
	// Expected errors during normal operations:
	//   - state.OrphanBlockError if the parent of the block is unknown
	//   - state.InvalidHeaderError, state.InvalidJustificationError,
	//     state.InvalidSuccessorError, state.InvalidForkError and
	//     state.DuplicateTransactionError if the block or its fork is invalid
	// Any other error is an exception.
	Push(block *flow.Block) (PushResult, error)
}
