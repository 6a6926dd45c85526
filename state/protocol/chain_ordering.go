package protocol

import (
	"github.com/onflow/pos-sync/model/flow"
)

// ChainOrdering classifies a block relative to the main chain.
type ChainOrdering int

const (
	// ChainOrderingExtend means the block's parent is the head.
	ChainOrderingExtend ChainOrdering = iota + 1
	// ChainOrderingBetter means the block's fork outweighs the main chain.
	ChainOrderingBetter
	// ChainOrderingInferior means the block's fork can never outweigh the main chain.
	ChainOrderingInferior
	// ChainOrderingUnknown means the decision is deferred until more of the fork is known.
	ChainOrderingUnknown
)

func (o ChainOrdering) String() string {
	switch o {
	case ChainOrderingExtend:
		return "extend"
	case ChainOrderingBetter:
		return "better"
	case ChainOrderingInferior:
		return "inferior"
	case ChainOrderingUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// ChainView is the read access the ordering needs. Implementations must return
// a consistent view for the duration of one ordering decision.
type ChainView interface {
	// Head returns the head of the main chain.
	Head() *flow.Block

	// MacroHead returns the last macro block of the main chain.
	MacroHead() *flow.Block

	// ChainInfo returns the chain info of a known block.
	ChainInfo(blockID flow.Identifier, includeBody bool) (*flow.ChainInfo, error)
}

// OrderChains classifies the block, whose predecessor has the given chain
// info, relative to the main chain. It has no side effects.
//
// Forks are weighed from their common ancestor with the main chain: the higher
// tip wins; at equal height the first differing view number, walking both
// chains upwards from the ancestor, decides and the higher view wins. Identical
// views keep the main chain. A fork of a fork lower than the head stays
// undecided, while a direct fork lower than the head is inferior.
func OrderChains(chain ChainView, block *flow.Block, prevInfo *flow.ChainInfo) ChainOrdering {
	head := chain.Head()
	if block.ParentID() == head.ID() {
		return ChainOrderingExtend
	}

	// collect the fork, tip first, down to the first main chain block
	fork := []*flow.Block{block}
	ancestor := prevInfo
	for !ancestor.OnMainChain {
		if ancestor.Head.IsMacro() {
			// macro blocks off the main chain are never adopted
			return ChainOrderingInferior
		}
		fork = append(fork, ancestor.Head)
		parent, err := chain.ChainInfo(ancestor.Head.ParentID(), false)
		if err != nil {
			return ChainOrderingUnknown
		}
		ancestor = parent
	}
	direct := len(fork) == 1

	if ancestor.Head.Number() < chain.MacroHead().Number() {
		return ChainOrderingInferior
	}

	switch {
	case block.Number() > head.Number():
		return ChainOrderingBetter
	case block.Number() < head.Number():
		if direct {
			return ChainOrderingInferior
		}
		return ChainOrderingUnknown
	}

	// equal height: compare views upwards from the fork point
	mainID := ancestor.MainChainSuccessor
	for i := len(fork) - 1; i >= 0; i-- {
		main, err := chain.ChainInfo(mainID, false)
		if err != nil {
			return ChainOrderingUnknown
		}
		forkView, mainView := fork[i].View(), main.Head.View()
		if forkView > mainView {
			return ChainOrderingBetter
		}
		if forkView < mainView {
			return ChainOrderingInferior
		}
		mainID = main.MainChainSuccessor
	}
	return ChainOrderingInferior
}
