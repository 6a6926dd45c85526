package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/storage"
	"github.com/onflow/pos-sync/storage/badger/operation"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// DefaultCacheSize is the number of bodiless chain infos kept in memory.
const DefaultCacheSize = 1000

// ChainStore implements storage.ChainStore on badger.
//
// The cache holds bodiless chain infos and is filled only from committed
// writes. Read misses go to the database without populating the cache, so a
// read racing with a commit can never install a stale record.
type ChainStore struct {
	db    *badger.DB
	cache *lru.Cache[flow.Identifier, *flow.ChainInfo]
}

var _ storage.ChainStore = (*ChainStore)(nil)

// NewChainStore creates a chain store with a cache of the given size.
func NewChainStore(db *badger.DB, cacheSize int) *ChainStore {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[flow.Identifier, *flow.ChainInfo](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("could not create chain info cache: %v", err))
	}
	return &ChainStore{
		db:    db,
		cache: cache,
	}
}

func (c *ChainStore) ChainInfo(blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error) {
	if !includeBody {
		if cached, ok := c.cache.Get(blockID); ok {
			return cached, nil
		}
	}
	var info *flow.ChainInfo
	err := transaction.View(c.db, func(tx *transaction.Tx) error {
		var err error
		info, err = c.ChainInfoTx(tx, blockID, includeBody)
		return err
	})
	return info, err
}

func (c *ChainStore) Head() (flow.Identifier, error) {
	var headID flow.Identifier
	err := c.db.View(operation.RetrieveHead(&headID))
	if err != nil {
		return flow.ZeroID, fmt.Errorf("could not retrieve head: %w", err)
	}
	return headID, nil
}

func (c *ChainStore) MacroHead() (flow.Identifier, error) {
	var macroID flow.Identifier
	err := c.db.View(operation.RetrieveMacroHead(&macroID))
	if err != nil {
		return flow.ZeroID, fmt.Errorf("could not retrieve macro head: %w", err)
	}
	return macroID, nil
}

func (c *ChainStore) BlocksBackward(startID flow.Identifier, count uint32, includeBody bool) ([]*flow.Block, error) {
	blocks := make([]*flow.Block, 0, count)
	err := transaction.View(c.db, func(tx *transaction.Tx) error {
		info, err := c.ChainInfoTx(tx, startID, false)
		if err != nil {
			return fmt.Errorf("could not retrieve start block %x: %w", startID, err)
		}
		parentID := info.Head.ParentID()
		for uint32(len(blocks)) < count && parentID != flow.ZeroID {
			info, err = c.ChainInfoTx(tx, parentID, includeBody)
			if err != nil {
				return fmt.Errorf("could not retrieve ancestor %x: %w", parentID, err)
			}
			blocks = append(blocks, info.Head)
			parentID = info.Head.ParentID()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (c *ChainStore) BlockIDsAt(height uint32) ([]flow.Identifier, error) {
	var blockIDs []flow.Identifier
	err := c.db.View(operation.LookupBlocksAtHeight(height, &blockIDs))
	if err != nil {
		return nil, fmt.Errorf("could not look up blocks at height %d: %w", height, err)
	}
	return blockIDs, nil
}

func (c *ChainStore) ChainInfoTx(tx *transaction.Tx, blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error) {
	var stored operation.StoredChainInfo
	err := operation.RetrieveChainInfo(blockID, &stored)(tx.DBTxn)
	if err != nil {
		return nil, err
	}
	if !includeBody {
		return stored.ChainInfo(nil), nil
	}

	var payload flow.Payload
	err = operation.RetrieveBody(blockID, &payload)(tx.DBTxn)
	if errors.Is(err, storage.ErrNotFound) {
		// fork records may have been stored without their body
		return stored.ChainInfo(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not retrieve body of %x: %w", blockID, err)
	}
	return stored.ChainInfo(&payload), nil
}

func (c *ChainStore) HeadTx(tx *transaction.Tx) (flow.Identifier, error) {
	var headID flow.Identifier
	err := operation.RetrieveHead(&headID)(tx.DBTxn)
	if err != nil {
		return flow.ZeroID, fmt.Errorf("could not retrieve head: %w", err)
	}
	return headID, nil
}

func (c *ChainStore) PutTx(blockID flow.Identifier, info *flow.ChainInfo, includeBody bool) func(*transaction.Tx) error {
	return func(tx *transaction.Tx) error {
		err := operation.UpsertChainInfo(blockID, operation.NewStoredChainInfo(info))(tx.DBTxn)
		if err != nil {
			return fmt.Errorf("could not store chain info: %w", err)
		}
		err = operation.IndexBlockHeight(info.Head.Number(), blockID)(tx.DBTxn)
		if err != nil {
			return fmt.Errorf("could not index block height: %w", err)
		}
		if includeBody && info.Head.HasBody() {
			err = operation.UpsertBody(blockID, info.Head.Payload)(tx.DBTxn)
			if err != nil {
				return fmt.Errorf("could not store block body: %w", err)
			}
		}

		cached := info.WithoutBody()
		tx.OnSucceed(func() {
			c.cache.Add(blockID, cached)
		})
		return nil
	}
}

func (c *ChainStore) RemoveTx(blockID flow.Identifier, height uint32) func(*transaction.Tx) error {
	return func(tx *transaction.Tx) error {
		err := operation.RemoveChainInfo(blockID)(tx.DBTxn)
		if err != nil {
			return fmt.Errorf("could not remove chain info: %w", err)
		}
		err = operation.RemoveBody(blockID)(tx.DBTxn)
		if err != nil {
			return fmt.Errorf("could not remove block body: %w", err)
		}
		err = operation.RemoveBlockHeight(height, blockID)(tx.DBTxn)
		if err != nil {
			return fmt.Errorf("could not remove height index: %w", err)
		}
		tx.OnSucceed(func() {
			c.cache.Remove(blockID)
		})
		return nil
	}
}

func (c *ChainStore) SetHeadTx(blockID flow.Identifier) func(*transaction.Tx) error {
	return transaction.WithTx(operation.UpdateHead(blockID))
}

func (c *ChainStore) SetMacroHeadTx(blockID flow.Identifier) func(*transaction.Tx) error {
	return transaction.WithTx(operation.UpdateMacroHead(blockID))
}
