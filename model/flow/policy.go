package flow

import (
	"time"
)

const (
	// BatchLength is the number of blocks in a batch. The last block of every
	// batch is a macro block.
	BatchLength uint32 = 32

	// MaxTimestampDrift is how far a block timestamp may lie in the future of
	// the local clock.
	MaxTimestampDrift = 15 * time.Second
)

// IsMacroBlockAt returns true if the block at the given height must be a macro block.
func IsMacroBlockAt(number uint32) bool {
	return number%BatchLength == 0
}

// BlockTypeAt returns the type of the block at the given height.
func BlockTypeAt(number uint32) BlockType {
	if IsMacroBlockAt(number) {
		return BlockTypeMacro
	}
	return BlockTypeMicro
}

// LastMacroBlockAt returns the height of the last macro block at or below the given height.
func LastMacroBlockAt(number uint32) uint32 {
	return number - number%BatchLength
}

// BatchAt returns the index of the batch the given height belongs to.
// The genesis block forms batch 0.
func BatchAt(number uint32) uint32 {
	return (number + BatchLength - 1) / BatchLength
}
