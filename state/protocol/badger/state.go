package badger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/state/protocol"
	"github.com/onflow/pos-sync/storage"
	"github.com/onflow/pos-sync/storage/badger/operation"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// State is the badger backed chain state. The head and macro head are cached
// in memory and only updated after the transaction moving them committed.
type State struct {
	db     *badger.DB
	chain  storage.ChainStore
	ledger storage.Ledger

	mu        sync.RWMutex
	head      *flow.Block
	macroHead *flow.Block
}

var _ protocol.State = (*State)(nil)

// Bootstrap initializes a fresh database with the given root block, which must
// be a macro block. The root block is applied to the ledger and becomes head
// and macro head.
func Bootstrap(db *badger.DB, chain storage.ChainStore, ledger storage.Ledger, root *flow.Block) (*State, error) {
	isBootstrapped, err := IsBootstrapped(db)
	if err != nil {
		return nil, fmt.Errorf("could not check bootstrap status: %w", err)
	}
	if isBootstrapped {
		return nil, fmt.Errorf("expected empty database")
	}
	if !root.IsMacro() {
		return nil, fmt.Errorf("root block must be a macro block, got %s block", root.Header.Type)
	}
	if !root.HasBody() {
		return nil, fmt.Errorf("root block must contain its body")
	}

	rootID := root.ID()
	err = transaction.Update(db, func(tx *transaction.Tx) error {
		err := ledger.ApplyTx(root)(tx)
		if err != nil {
			return fmt.Errorf("could not apply root block: %w", err)
		}
		err = chain.PutTx(rootID, flow.NewGenesisChainInfo(root), true)(tx)
		if err != nil {
			return fmt.Errorf("could not store root block: %w", err)
		}
		err = chain.SetHeadTx(rootID)(tx)
		if err != nil {
			return fmt.Errorf("could not set head: %w", err)
		}
		return chain.SetMacroHeadTx(rootID)(tx)
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrapping failed: %w", err)
	}

	return newState(db, chain, ledger, root, root), nil
}

// OpenState opens a bootstrapped database.
func OpenState(db *badger.DB, chain storage.ChainStore, ledger storage.Ledger) (*State, error) {
	isBootstrapped, err := IsBootstrapped(db)
	if err != nil {
		return nil, fmt.Errorf("could not check bootstrap status: %w", err)
	}
	if !isBootstrapped {
		return nil, fmt.Errorf("expected database to contain bootstrapped state")
	}

	headID, err := chain.Head()
	if err != nil {
		return nil, err
	}
	head, err := chain.ChainInfo(headID, false)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve head block: %w", err)
	}
	macroID, err := chain.MacroHead()
	if err != nil {
		return nil, err
	}
	macro, err := chain.ChainInfo(macroID, false)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve macro head block: %w", err)
	}
	return newState(db, chain, ledger, head.Head, macro.Head), nil
}

// IsBootstrapped returns whether the database contains a head pointer.
func IsBootstrapped(db *badger.DB) (bool, error) {
	var headID flow.Identifier
	err := db.View(operation.RetrieveHead(&headID))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not retrieve head: %w", err)
	}
	return true, nil
}

func newState(db *badger.DB, chain storage.ChainStore, ledger storage.Ledger, head *flow.Block, macroHead *flow.Block) *State {
	return &State{
		db:        db,
		chain:     chain,
		ledger:    ledger,
		head:      head,
		macroHead: macroHead,
	}
}

func (s *State) Head() *flow.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

func (s *State) HeadID() flow.Identifier {
	return s.Head().ID()
}

func (s *State) MacroHead() *flow.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.macroHead
}

func (s *State) ChainInfo(blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error) {
	return s.chain.ChainInfo(blockID, includeBody)
}

func (s *State) BlocksBackward(startID flow.Identifier, count uint32, includeBody bool) ([]*flow.Block, error) {
	return s.chain.BlocksBackward(startID, count, includeBody)
}

func (s *State) BlockLocators() ([]flow.Identifier, error) {
	s.mu.RLock()
	head, macroHead := s.head, s.macroHead
	s.mu.RUnlock()

	headID := head.ID()
	locators := []flow.Identifier{headID}
	if head.Number() == macroHead.Number() {
		return locators, nil
	}
	ancestors, err := s.chain.BlocksBackward(headID, head.Number()-macroHead.Number(), false)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve locator blocks: %w", err)
	}
	for _, block := range ancestors {
		locators = append(locators, block.ID())
	}
	return locators, nil
}

// setHeads updates the cached heads. Only called after a commit.
func (s *State) setHeads(head *flow.Block, macroHead *flow.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = head
	if macroHead != nil {
		s.macroHead = macroHead
	}
}
