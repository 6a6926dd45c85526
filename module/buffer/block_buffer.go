package buffer

import (
	"golang.org/x/exp/slices"

	"github.com/onflow/pos-sync/model/flow"
)

// BlockBuffer holds blocks which are ahead of the chain head, grouped by
// height. It is not safe for concurrent use; the sync queue worker owns it.
type BlockBuffer struct {
	heights []uint32 // sorted ascending, one entry per non-empty bucket
	buckets map[uint32][]*flow.Block
	ids     map[flow.Identifier]struct{}
}

func NewBlockBuffer() *BlockBuffer {
	return &BlockBuffer{
		buckets: make(map[uint32][]*flow.Block),
		ids:     make(map[flow.Identifier]struct{}),
	}
}

// Insert adds the block to the bucket of its height. It returns false if the
// block is already buffered.
func (b *BlockBuffer) Insert(block *flow.Block) bool {
	blockID := block.ID()
	if _, ok := b.ids[blockID]; ok {
		return false
	}
	height := block.Number()
	index, found := slices.BinarySearch(b.heights, height)
	if !found {
		b.heights = slices.Insert(b.heights, index, height)
	}
	b.buckets[height] = append(b.buckets[height], block)
	b.ids[blockID] = struct{}{}
	return true
}

// Has returns whether the block is buffered.
func (b *BlockBuffer) Has(blockID flow.Identifier) bool {
	_, ok := b.ids[blockID]
	return ok
}

// PopReady removes and returns the lowest bucket if its height is at most one
// above the given head height. Blocks of a bucket are returned in insertion
// order.
func (b *BlockBuffer) PopReady(headHeight uint32) (uint32, []*flow.Block, bool) {
	if len(b.heights) == 0 {
		return 0, nil, false
	}
	height := b.heights[0]
	if height > headHeight+1 {
		return 0, nil, false
	}
	blocks := b.buckets[height]
	delete(b.buckets, height)
	b.heights = b.heights[1:]
	for _, block := range blocks {
		delete(b.ids, block.ID())
	}
	return height, blocks, true
}

// EvictDescendantsOf removes every buffered block whose parent is in the
// invalid set. Evicted blocks join the set, so descendants at any depth are
// removed. The evicted blocks are returned in ascending height.
func (b *BlockBuffer) EvictDescendantsOf(invalid map[flow.Identifier]struct{}) []*flow.Block {
	var evicted []*flow.Block
	for {
		removed := 0
		for _, height := range b.heights {
			kept := b.buckets[height][:0]
			for _, block := range b.buckets[height] {
				if _, ok := invalid[block.ParentID()]; !ok {
					kept = append(kept, block)
					continue
				}
				blockID := block.ID()
				invalid[blockID] = struct{}{}
				delete(b.ids, blockID)
				evicted = append(evicted, block)
				removed++
			}
			b.buckets[height] = kept
		}
		b.compact()
		if removed == 0 {
			return evicted
		}
	}
}

// compact drops empty buckets.
func (b *BlockBuffer) compact() {
	b.heights = slices.DeleteFunc(b.heights, func(height uint32) bool {
		if len(b.buckets[height]) > 0 {
			return false
		}
		delete(b.buckets, height)
		return true
	})
}

// Len returns the total number of buffered blocks.
func (b *BlockBuffer) Len() int {
	return len(b.ids)
}

// Heights returns the occupied heights in ascending order.
func (b *BlockBuffer) Heights() []uint32 {
	return slices.Clone(b.heights)
}

// Entries returns all buffered blocks in ascending height.
func (b *BlockBuffer) Entries() []*flow.Block {
	entries := make([]*flow.Block, 0, len(b.ids))
	for _, height := range b.heights {
		entries = append(entries, b.buckets[height]...)
	}
	return entries
}
