package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
)

func UpdateHead(blockID flow.Identifier) func(*badger.Txn) error {
	return upsert(makePrefix(codeHead), blockID)
}

func RetrieveHead(blockID *flow.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHead), blockID)
}

// UpdateMacroHead points to the last finalized macro block of the main chain.
func UpdateMacroHead(blockID flow.Identifier) func(*badger.Txn) error {
	return upsert(makePrefix(codeMacroHead), blockID)
}

func RetrieveMacroHead(blockID *flow.Identifier) func(*badger.Txn) error {
	return retrieve(makePrefix(codeMacroHead), blockID)
}
