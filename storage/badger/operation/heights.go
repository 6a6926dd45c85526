package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
)

// IndexBlockHeight adds the block to the index of blocks at its height.
// Indexing the same block twice is a no-op.
func IndexBlockHeight(height uint32, blockID flow.Identifier) func(*badger.Txn) error {
	return upsert(makePrefix(codeBlockHeight, height, blockID), blockID)
}

// LookupBlocksAtHeight collects the IDs of all indexed blocks at the height.
func LookupBlocksAtHeight(height uint32, blockIDs *[]flow.Identifier) func(*badger.Txn) error {
	prefix := makePrefix(codeBlockHeight, height)
	*blockIDs = make([]flow.Identifier, 0, 1)
	return traverseKeys(prefix, func(key []byte) error {
		err := mustDecodeKey(key, len(prefix)+len(flow.ZeroID))
		if err != nil {
			return err
		}
		var blockID flow.Identifier
		copy(blockID[:], key[len(prefix):])
		*blockIDs = append(*blockIDs, blockID)
		return nil
	})
}

func RemoveBlockHeight(height uint32, blockID flow.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeBlockHeight, height, blockID))
}
