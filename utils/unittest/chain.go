package unittest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module/committees"
	"github.com/onflow/pos-sync/module/signature"
)

// ChainBuilder produces correctly typed and signed blocks for a fixed
// validator set.
type ChainBuilder struct {
	t         testing.TB
	Committee *committees.Static
	Genesis   *flow.Block
	signers   map[flow.Identifier]*signature.Signer
}

// NewChainBuilder creates a builder with the given number of validators.
func NewChainBuilder(t testing.TB, numValidators int) *ChainBuilder {
	validators := make([]*flow.Validator, 0, numValidators)
	signers := make(map[flow.Identifier]*signature.Signer, numValidators)
	for i := 0; i < numValidators; i++ {
		signer, err := signature.GenerateSigner()
		require.NoError(t, err)
		validator := &flow.Validator{
			NodeID:    IdentifierFixture(),
			PublicKey: signer.PublicKey(),
		}
		validators = append(validators, validator)
		signers[validator.NodeID] = signer
	}
	committee, err := committees.NewStatic(validators)
	require.NoError(t, err)

	return &ChainBuilder{
		t:         t,
		Committee: committee,
		Genesis:   GenesisFixture(),
		signers:   signers,
	}
}

// Extend returns a signed block on top of parent at the given view.
func (b *ChainBuilder) Extend(parent *flow.Block, view uint32, transactions ...*flow.Transaction) *flow.Block {
	number := parent.Number() + 1
	owner, slot, ok := b.Committee.SlotOwnerAt(number, view)
	require.True(b.t, ok)

	block := flow.NewBlock(flow.Header{
		Type:         flow.BlockTypeAt(number),
		Number:       number,
		View:         view,
		ParentID:     parent.ID(),
		Timestamp:    parent.Header.Timestamp + 1000,
		ProposerSlot: slot,
	}, &flow.Payload{Transactions: transactions})
	return b.signers[owner.NodeID].SignBlock(block)
}

// Chain returns n signed blocks on top of parent, parent-first, all at the given view.
func (b *ChainBuilder) Chain(parent *flow.Block, n int, view uint32) []*flow.Block {
	blocks := make([]*flow.Block, 0, n)
	for i := 0; i < n; i++ {
		parent = b.Extend(parent, view, TransactionFixture())
		blocks = append(blocks, parent)
	}
	return blocks
}

// Resign returns a copy of the block signed again by its slot owner, after the
// header was modified by the caller.
func (b *ChainBuilder) Resign(block *flow.Block) *flow.Block {
	owner, _, ok := b.Committee.SlotOwnerAt(block.Number(), block.View())
	require.True(b.t, ok)
	return b.signers[owner.NodeID].SignBlock(block)
}
