package badger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/state"
	"github.com/onflow/pos-sync/state/protocol"
	"github.com/onflow/pos-sync/storage"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// MutableState extends the chain state through pushes of single blocks.
type MutableState struct {
	*State
	log      zerolog.Logger
	selector module.ValidatorSelector
	verifier module.Verifier
	consumer protocol.Consumer
	metrics  module.ChainMetrics

	// serializes pushes
	pushLock sync.Mutex
}

var _ protocol.MutableState = (*MutableState)(nil)

// NewMutableState wraps the state with block verification and chain extension.
func NewMutableState(
	log zerolog.Logger,
	s *State,
	selector module.ValidatorSelector,
	verifier module.Verifier,
	consumer protocol.Consumer,
	metrics module.ChainMetrics,
) *MutableState {
	return &MutableState{
		State:    s,
		log:      log.With().Str("component", "chain_state").Logger(),
		selector: selector,
		verifier: verifier,
		consumer: consumer,
		metrics:  metrics,
	}
}

// Push applies a single block to the chain. Verification failures never write
// to storage. All writes of a push commit atomically.
func (m *MutableState) Push(block *flow.Block) (protocol.PushResult, error) {
	m.pushLock.Lock()
	defer m.pushLock.Unlock()

	result, err := m.push(block)
	m.metrics.BlockPushed(pushOutcome(result, err))
	return result, err
}

func (m *MutableState) push(block *flow.Block) (protocol.PushResult, error) {
	blockID := block.ID()
	log := m.log.With().
		Hex("block_id", blockID[:]).
		Uint32("number", block.Number()).
		Uint32("view", block.View()).
		Logger()

	_, err := m.chain.ChainInfo(blockID, false)
	if err == nil {
		return protocol.PushResultKnown, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, irrecoverable.NewExceptionf("could not check for known block %x: %w", blockID, err)
	}

	if !block.HasBody() {
		return 0, state.NewInvalidHeaderErrorf("block %x has no body", blockID)
	}

	prevInfo, err := m.chain.ChainInfo(block.ParentID(), false)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, state.NewOrphanBlockErrorf("parent %x of block %x is unknown", block.ParentID(), blockID)
	}
	if err != nil {
		return 0, irrecoverable.NewExceptionf("could not retrieve parent %x: %w", block.ParentID(), err)
	}

	ordering := protocol.OrderChains(m.State, block, prevInfo)
	if ordering == protocol.ChainOrderingInferior {
		log.Debug().Msg("ignoring block on inferior chain")
		return protocol.PushResultIgnored, nil
	}

	owner, slot, ok := m.selector.SlotOwnerAt(block.Number(), block.View())
	if !ok {
		return 0, irrecoverable.NewExceptionf("no slot owner for block number %d view %d", block.Number(), block.View())
	}

	err = m.verifier.VerifyHeader(block.Header, owner, slot)
	if err != nil {
		return 0, state.NewInvalidHeaderErrorf("invalid header of block %x: %w", blockID, err)
	}
	if block.Payload.Hash() != block.Header.PayloadHash {
		return 0, state.NewInvalidHeaderErrorf("payload of block %x does not match its payload hash", blockID)
	}
	err = m.verifier.VerifyJustification(block.Header, block.Justification, owner)
	if err != nil {
		return 0, state.NewInvalidJustificationErrorf("invalid justification of block %x: %w", blockID, err)
	}

	info, err := flow.NewChainInfo(block, prevInfo)
	if err != nil {
		return 0, state.NewInvalidSuccessorErrorf("block %x does not link to its parent: %w", blockID, err)
	}

	switch ordering {
	case protocol.ChainOrderingExtend:
		err = m.extend(block, info, prevInfo)
		if err != nil {
			return 0, err
		}
		log.Debug().Msg("chain extended")
		return protocol.PushResultExtended, nil

	case protocol.ChainOrderingBetter:
		err = m.rebranch(block, info)
		if err != nil {
			return 0, err
		}
		log.Info().Msg("chain rebranched")
		return protocol.PushResultRebranched, nil

	case protocol.ChainOrderingUnknown:
		err = transaction.Update(m.db, m.chain.PutTx(blockID, info, true))
		if err != nil {
			return 0, fmt.Errorf("could not store fork block: %w", err)
		}
		log.Debug().Msg("stored fork block")
		return protocol.PushResultForked, nil

	default:
		return 0, irrecoverable.NewExceptionf("unexpected chain ordering %s", ordering)
	}
}

// extend makes the block the new head in a single transaction.
func (m *MutableState) extend(block *flow.Block, info *flow.ChainInfo, prevInfo *flow.ChainInfo) error {
	blockID := block.ID()
	var macroHead *flow.Block
	if block.IsMacro() {
		macroHead = block
	}

	err := transaction.Update(m.db, func(tx *transaction.Tx) error {
		err := m.ledger.ApplyTx(block)(tx)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return state.NewDuplicateTransactionErrorf("block %x replays a transaction: %w", blockID, err)
		}
		if err != nil {
			return fmt.Errorf("could not apply block %x: %w", blockID, err)
		}

		info.OnMainChain = true
		err = m.chain.PutTx(blockID, info, true)(tx)
		if err != nil {
			return err
		}

		prev := *prevInfo
		prev.MainChainSuccessor = blockID
		err = m.chain.PutTx(prev.Head.ID(), &prev, false)(tx)
		if err != nil {
			return fmt.Errorf("could not update predecessor: %w", err)
		}

		err = m.chain.SetHeadTx(blockID)(tx)
		if err != nil {
			return fmt.Errorf("could not set head: %w", err)
		}
		if macroHead != nil {
			err = m.chain.SetMacroHeadTx(blockID)(tx)
			if err != nil {
				return fmt.Errorf("could not set macro head: %w", err)
			}
		}

		tx.OnSucceed(func() {
			m.setHeads(block, macroHead)
		})
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.HeadHeight(block.Number())
	m.consumer.BlockExtended(block)
	if macroHead != nil {
		m.consumer.BlockFinalized(block)
	}
	return nil
}

// pushOutcome labels a push for metrics.
func pushOutcome(result protocol.PushResult, err error) string {
	switch {
	case err == nil:
		return result.String()
	case state.IsOrphanBlockError(err):
		return "orphan"
	case state.IsInvalidBlockError(err):
		return "invalid"
	default:
		return "error"
	}
}
