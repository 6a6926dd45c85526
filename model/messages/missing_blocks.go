package messages

import (
	"github.com/onflow/pos-sync/model/flow"
)

// MaxMissingBlocks is the maximum number of blocks in one response. A shorter
// response means the responder has no further blocks on the requested path.
const MaxMissingBlocks = int(2 * flow.BatchLength)

// MissingBlocksRequest asks a peer for the blocks between the newest locator it
// knows and the target block.
type MissingBlocksRequest struct {
	Nonce    uint64
	TargetID flow.Identifier   // ZeroID requests the responder's main chain up to its head
	Locators []flow.Identifier // newest first, ends at the last macro block
}

// MissingBlocksResponse carries the requested blocks ordered parent-first. The
// last block is the target if the responder knows it.
type MissingBlocksResponse struct {
	Nonce  uint64
	Blocks []*flow.Block
}

// BlockAnnouncement is the gossip payload on the blocks topic.
type BlockAnnouncement struct {
	Block *flow.Block
}
