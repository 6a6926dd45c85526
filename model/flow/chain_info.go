package flow

import (
	"fmt"
)

// ChainInfo is the persisted metadata of a known block: the block itself,
// whether it is part of the main chain and, if so, the ID of its main chain
// successor (ZeroID while the block is the head or off the main chain).
type ChainInfo struct {
	Head               *Block
	OnMainChain        bool
	MainChainSuccessor Identifier
}

// NewChainInfo links a block to the chain info of its predecessor. The
// resulting info is not on the main chain and has no successor; the mutator
// decides about main chain membership. Linking fails if the block does not
// follow its predecessor.
func NewChainInfo(block *Block, prev *ChainInfo) (*ChainInfo, error) {
	parent := prev.Head
	if block.ParentID() != parent.ID() {
		return nil, fmt.Errorf("parent mismatch (block parent: %x, predecessor: %x)", block.ParentID(), parent.ID())
	}
	if block.Number() != parent.Number()+1 {
		return nil, fmt.Errorf("block number %d does not follow predecessor number %d", block.Number(), parent.Number())
	}
	if block.Header.Timestamp < parent.Header.Timestamp {
		return nil, fmt.Errorf("block timestamp %d is before predecessor timestamp %d", block.Header.Timestamp, parent.Header.Timestamp)
	}
	if parent.IsMacro() && block.View() < parent.View() {
		return nil, fmt.Errorf("block view %d is below view %d of preceding macro block", block.View(), parent.View())
	}
	return &ChainInfo{
		Head: block,
	}, nil
}

// NewGenesisChainInfo returns the chain info of the first block of a chain.
func NewGenesisChainInfo(genesis *Block) *ChainInfo {
	return &ChainInfo{
		Head:        genesis,
		OnMainChain: true,
	}
}

// HasSuccessor returns true if a main chain successor is set.
func (c *ChainInfo) HasSuccessor() bool {
	return c.MainChainSuccessor != ZeroID
}

// WithoutBody returns a copy of the chain info with the block body stripped.
func (c *ChainInfo) WithoutBody() *ChainInfo {
	return &ChainInfo{
		Head:               c.Head.WithoutBody(),
		OnMainChain:        c.OnMainChain,
		MainChainSuccessor: c.MainChainSuccessor,
	}
}
