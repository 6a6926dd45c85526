package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
)

// IndexTransactionBlock records the main chain block which applied the
// transaction. It fails with storage.ErrAlreadyExists on a replay.
func IndexTransactionBlock(txID flow.Identifier, blockID flow.Identifier) func(*badger.Txn) error {
	return insert(makePrefix(codeTransactionBlock, txID), blockID)
}

func LookupTransactionBlock(txID flow.Identifier, blockID *flow.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeTransactionBlock, txID), blockID)
}

func RemoveTransactionBlock(txID flow.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeTransactionBlock, txID))
}
