package storage

import (
	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// ChainStore persists the chain info of every known block, main chain or fork,
// together with the head pointer of the main chain. Reads outside of a
// transaction observe a consistent snapshot. Writes are grouped by the caller
// into a single transaction.
type ChainStore interface {

	// ChainInfo returns the chain info of the given block.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the block is unknown
	ChainInfo(blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error)

	// Head returns the ID of the main chain head.
	Head() (flow.Identifier, error)

	// MacroHead returns the ID of the last macro block of the main chain.
	MacroHead() (flow.Identifier, error)

	// BlocksBackward returns up to count blocks preceding the start block,
	// newest first. The start block itself is not included. The result is
	// shorter than count when the walk reaches genesis.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the start block is unknown
	BlocksBackward(startID flow.Identifier, count uint32, includeBody bool) ([]*flow.Block, error)

	// BlockIDsAt returns the IDs of all known blocks at the given height.
	BlockIDsAt(height uint32) ([]flow.Identifier, error)

	// ChainInfoTx reads a chain info within the given transaction, observing the
	// writes the transaction already made.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the block is unknown
	ChainInfoTx(tx *transaction.Tx, blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error)

	// HeadTx reads the head pointer within the given transaction.
	HeadTx(tx *transaction.Tx) (flow.Identifier, error)

	// PutTx stores the chain info. The block body is written only if
	// includeBody is set; an existing body is never removed by PutTx.
	PutTx(blockID flow.Identifier, info *flow.ChainInfo, includeBody bool) func(*transaction.Tx) error

	// RemoveTx removes the chain info, the body and the height index entry of
	// the block. Removing an unknown block is a no-op.
	RemoveTx(blockID flow.Identifier, height uint32) func(*transaction.Tx) error

	// SetHeadTx moves the head pointer to the given block.
	SetHeadTx(blockID flow.Identifier) func(*transaction.Tx) error

	// SetMacroHeadTx moves the macro head pointer to the given block.
	SetMacroHeadTx(blockID flow.Identifier) func(*transaction.Tx) error
}

// Ledger holds the state effects of applied blocks. Effects are applied and
// reverted within the transaction that moves the head.
type Ledger interface {

	// ApplyTx applies the payload of the block.
	// Expected errors during normal operations:
	//   - storage.ErrAlreadyExists if a transaction of the payload was applied before
	ApplyTx(block *flow.Block) func(*transaction.Tx) error

	// RevertTx reverts the payload effects of a previously applied block.
	RevertTx(block *flow.Block) func(*transaction.Tx) error

	// TransactionBlock returns the ID of the main chain block which applied the
	// transaction.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the transaction is not applied
	TransactionBlock(txID flow.Identifier) (flow.Identifier, error)
}
