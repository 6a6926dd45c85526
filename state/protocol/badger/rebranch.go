package badger

import (
	"errors"
	"fmt"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/state"
	"github.com/onflow/pos-sync/storage"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// forkPlan holds the chain infos involved in a rebranch.
type forkPlan struct {
	ancestor *flow.ChainInfo
	fork     []*flow.ChainInfo // tip first, the tip is not stored yet
	reverted []*flow.ChainInfo // current head first
}

// errForkApply marks a fork block which failed to apply during a rebranch.
type errForkApply struct {
	index int // position in forkPlan.fork
	err   error
}

func (e *errForkApply) Error() string {
	return fmt.Sprintf("could not apply fork block: %v", e.err)
}

func (e *errForkApply) Unwrap() error {
	return e.err
}

// rebranch adopts the fork ending in the given block as main chain. If a fork
// block fails to apply, the chain is left at the common ancestor and the failed
// block and its fork descendants are removed.
func (m *MutableState) rebranch(tip *flow.Block, tipInfo *flow.ChainInfo) error {
	var plan *forkPlan
	err := transaction.Update(m.db, func(tx *transaction.Tx) error {
		var err error
		plan, err = m.planRebranch(tx, tipInfo)
		if err != nil {
			return err
		}

		err = m.revertMainChain(tx, plan)
		if err != nil {
			return err
		}

		// apply the fork from the ancestor to the tip
		successor := flow.ZeroID
		for i := 0; i < len(plan.fork); i++ {
			info := plan.fork[i]
			info.OnMainChain = true
			info.MainChainSuccessor = successor
			successor = info.Head.ID()
		}
		for i := len(plan.fork) - 1; i >= 0; i-- {
			info := plan.fork[i]
			err = m.ledger.ApplyTx(info.Head)(tx)
			if err != nil {
				if irrecoverable.IsException(err) {
					return err
				}
				return &errForkApply{index: i, err: err}
			}
			err = m.chain.PutTx(info.Head.ID(), info, info.Head.HasBody())(tx)
			if err != nil {
				return err
			}
		}

		ancestor := *plan.ancestor
		ancestor.MainChainSuccessor = successor
		err = m.chain.PutTx(ancestor.Head.ID(), &ancestor, false)(tx)
		if err != nil {
			return fmt.Errorf("could not update common ancestor: %w", err)
		}

		tipID := tip.ID()
		err = m.chain.SetHeadTx(tipID)(tx)
		if err != nil {
			return fmt.Errorf("could not set head: %w", err)
		}
		var macroHead *flow.Block
		if tip.IsMacro() {
			macroHead = tip
			err = m.chain.SetMacroHeadTx(tipID)(tx)
			if err != nil {
				return fmt.Errorf("could not set macro head: %w", err)
			}
		}

		tx.OnSucceed(func() {
			m.setHeads(tip, macroHead)
		})
		return nil
	})

	var applyErr *errForkApply
	if errors.As(err, &applyErr) {
		return m.abortRebranch(plan, applyErr)
	}
	if err != nil {
		return err
	}

	reverted := chainOrder(plan.reverted)
	adopted := chainOrder(plan.fork)
	m.metrics.HeadHeight(tip.Number())
	m.metrics.Rebranched(len(reverted), len(adopted))
	m.consumer.Rebranched(reverted, adopted)
	if tip.IsMacro() {
		m.consumer.BlockFinalized(tip)
	}
	return nil
}

// planRebranch walks the fork down to the main chain and the main chain down
// to the common ancestor.
func (m *MutableState) planRebranch(tx *transaction.Tx, tipInfo *flow.ChainInfo) (*forkPlan, error) {
	plan := &forkPlan{fork: []*flow.ChainInfo{tipInfo}}

	current := tipInfo
	for {
		parentID := current.Head.ParentID()
		parent, err := m.chain.ChainInfoTx(tx, parentID, true)
		if err != nil {
			return nil, irrecoverable.NewExceptionf("could not retrieve fork block %x: %w", parentID, err)
		}
		if parent.OnMainChain {
			plan.ancestor = parent
			break
		}
		if parent.Head.IsMacro() {
			return nil, state.NewInvalidForkErrorf("fork crosses macro block %x", parentID)
		}
		plan.fork = append(plan.fork, parent)
		current = parent
	}

	macroHead := m.MacroHead()
	if plan.ancestor.Head.Number() < macroHead.Number() {
		return nil, state.NewInvalidForkErrorf("common ancestor %d is below the last macro block %d",
			plan.ancestor.Head.Number(), macroHead.Number())
	}

	headID, err := m.chain.HeadTx(tx)
	if err != nil {
		return nil, irrecoverable.NewException(err)
	}
	ancestorID := plan.ancestor.Head.ID()
	for headID != ancestorID {
		info, err := m.chain.ChainInfoTx(tx, headID, true)
		if err != nil {
			return nil, irrecoverable.NewExceptionf("could not retrieve main chain block %x: %w", headID, err)
		}
		if info.Head.IsMacro() {
			return nil, state.NewInvalidForkErrorf("fork would revert macro block %x", headID)
		}
		plan.reverted = append(plan.reverted, info)
		headID = info.Head.ParentID()
	}
	return plan, nil
}

// revertMainChain reverts the main chain down to the common ancestor, most
// recent block first. Reverted blocks stay stored as fork records.
func (m *MutableState) revertMainChain(tx *transaction.Tx, plan *forkPlan) error {
	for _, info := range plan.reverted {
		blockID := info.Head.ID()
		err := m.ledger.RevertTx(info.Head)(tx)
		if err != nil {
			return irrecoverable.NewExceptionf("could not revert block %x: %w", blockID, err)
		}
		reverted := *info
		reverted.OnMainChain = false
		reverted.MainChainSuccessor = flow.ZeroID
		err = m.chain.PutTx(blockID, &reverted, false)(tx)
		if err != nil {
			return err
		}
	}
	return nil
}

// abortRebranch is called after the rebranch transaction was discarded because
// a fork block failed to apply. It moves the chain to the common ancestor and
// removes the failed block together with its fork descendants.
func (m *MutableState) abortRebranch(plan *forkPlan, applyErr *errForkApply) error {
	failed := plan.fork[applyErr.index]
	failedID := failed.Head.ID()
	ancestorID := plan.ancestor.Head.ID()

	err := transaction.Update(m.db, func(tx *transaction.Tx) error {
		err := m.revertMainChain(tx, plan)
		if err != nil {
			return err
		}

		ancestor := *plan.ancestor
		ancestor.MainChainSuccessor = flow.ZeroID
		err = m.chain.PutTx(ancestorID, &ancestor, false)(tx)
		if err != nil {
			return fmt.Errorf("could not update common ancestor: %w", err)
		}

		// the failed block and everything above it on the fork
		for i := 0; i <= applyErr.index; i++ {
			info := plan.fork[i]
			err = m.chain.RemoveTx(info.Head.ID(), info.Head.Number())(tx)
			if err != nil {
				return fmt.Errorf("could not remove invalid fork block: %w", err)
			}
		}

		err = m.chain.SetHeadTx(ancestorID)(tx)
		if err != nil {
			return fmt.Errorf("could not set head: %w", err)
		}
		tx.OnSucceed(func() {
			m.setHeads(plan.ancestor.Head, nil)
		})
		return nil
	})
	if err != nil {
		return irrecoverable.NewExceptionf("could not reset chain to common ancestor %x: %w", ancestorID, err)
	}

	reverted := chainOrder(plan.reverted)
	m.metrics.HeadHeight(plan.ancestor.Head.Number())
	m.metrics.Rebranched(len(reverted), 0)
	m.consumer.Rebranched(reverted, nil)

	cause := applyErr.err
	if errors.Is(cause, storage.ErrAlreadyExists) {
		cause = state.NewDuplicateTransactionErrorf("fork block %x replays a transaction: %w", failedID, cause)
	}
	return state.NewInvalidForkErrorf("fork block %x failed to apply, chain reset to common ancestor %x: %w",
		failedID, ancestorID, cause)
}

// chainOrder returns the blocks of the given infos, which are ordered newest
// first, in chain order.
func chainOrder(infos []*flow.ChainInfo) []*flow.Block {
	blocks := make([]*flow.Block, 0, len(infos))
	for i := len(infos) - 1; i >= 0; i-- {
		blocks = append(blocks, infos[i].Head)
	}
	return blocks
}
