package syncqueue

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module"
	"github.com/onflow/pos-sync/module/buffer"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/module/metrics"
	"github.com/onflow/pos-sync/state"
	"github.com/onflow/pos-sync/state/protocol"
)

// Core contains the block handling of the sync queue: it pushes blocks which
// fit onto the chain, buffers blocks ahead of the head and requests their
// missing ancestors.
//
// Core is not safe for concurrent use. The sync queue worker is its only caller.
type Core struct {
	log       zerolog.Logger
	cfg       Config
	state     protocol.MutableState
	requester module.RequestComponent
	metrics   module.SyncQueueMetrics
	buffer    *buffer.BlockBuffer
}

func NewCore(
	log zerolog.Logger,
	cfg Config,
	state protocol.MutableState,
	requester module.RequestComponent,
	metrics module.SyncQueueMetrics,
) *Core {
	return &Core{
		log:       log.With().Str("module", "sync_core").Logger(),
		cfg:       cfg,
		state:     state,
		requester: requester,
		metrics:   metrics,
		buffer:    buffer.NewBlockBuffer(),
	}
}

// OnBlockAnnounced handles a gossiped block. Blocks at or below the next
// height are pushed right away, in which case pushed is true and result holds
// the push result. Blocks further ahead are buffered and their missing
// ancestors requested, unless they lie beyond the window or the buffer is
// full.
// Expected errors during normal operations:
//   - state.InvalidHeaderError, state.InvalidJustificationError,
//     state.InvalidSuccessorError, state.InvalidForkError and
//     state.DuplicateTransactionError if the pushed block is invalid
//
// All other errors are exceptions.
func (c *Core) OnBlockAnnounced(block *flow.Block, origin peer.ID) (result protocol.PushResult, pushed bool, err error) {
	blockID := block.ID()
	head := c.state.Head()
	log := c.log.With().
		Hex("block_id", blockID[:]).
		Uint32("height", block.Number()).
		Uint32("head_height", head.Number()).
		Str("origin", origin.String()).
		Logger()

	if block.Number() <= head.Number()+1 {
		result, err = c.state.Push(block)
		if state.IsOrphanBlockError(err) {
			// a fork whose ancestors we do not know yet; only blocks above
			// the head may be buffered
			log.Debug().Msg("announced block is an orphan")
			if block.Number() > head.Number() {
				return 0, false, c.bufferBlock(block, origin)
			}
			return 0, false, c.requestMissing(blockID)
		}
		if isException(err) {
			return 0, true, irrecoverable.NewExceptionf("could not push announced block %x: %w", blockID, err)
		}
		if err != nil {
			return 0, true, err
		}
		if result.ExtendsChain() {
			err = c.drain()
			if err != nil {
				return 0, true, err
			}
		}
		return result, true, nil
	}

	if block.Number() > head.Number()+c.cfg.WindowMax {
		log.Debug().Msg("announced block outside of the buffering window, putting peer into sync mode")
		c.metrics.BlockDropped(metrics.DropReasonOutsideWindow)
		c.requester.PutPeerIntoSyncMode(origin)
		return 0, false, nil
	}
	return 0, false, c.bufferBlock(block, origin)
}

// bufferBlock stores the block and requests its missing ancestors.
func (c *Core) bufferBlock(block *flow.Block, origin peer.ID) error {
	blockID := block.ID()
	if c.buffer.Has(blockID) {
		return nil
	}
	if c.buffer.Len() >= c.cfg.BufferMax {
		c.log.Warn().
			Hex("block_id", blockID[:]).
			Uint32("height", block.Number()).
			Str("origin", origin.String()).
			Int("buffered", c.buffer.Len()).
			Msg("block buffer full, dropping block")
		c.metrics.BlockDropped(metrics.DropReasonBufferFull)
		return nil
	}

	c.buffer.Insert(block)
	c.metrics.BufferedBlocks(c.buffer.Len())
	return c.requestMissing(blockID)
}

// requestMissing asks peers for the blocks between our chain and the target.
func (c *Core) requestMissing(targetID flow.Identifier) error {
	locators, err := c.state.BlockLocators()
	if err != nil {
		return irrecoverable.NewExceptionf("could not compute block locators: %w", err)
	}
	c.requester.RequestMissingBlocks(targetID, locators)
	c.metrics.MissingBlocksRequested()
	return nil
}

// OnMissingBlocksReceived pushes the blocks of a missing blocks response in
// order. The first block that is ignored or fails marks itself and all later
// blocks of the response as invalid; buffered descendants of invalid blocks
// are evicted. Afterwards the buffer is drained.
// No errors are expected during normal operations.
func (c *Core) OnMissingBlocksReceived(blocks []*flow.Block) error {
	for i, block := range blocks {
		result, err := c.state.Push(block)
		if isException(err) {
			return err
		}
		if err == nil && result != protocol.PushResultIgnored {
			continue
		}

		blockID := block.ID()
		c.log.Debug().Err(err).
			Hex("block_id", blockID[:]).
			Uint32("height", block.Number()).
			Int("discarded", len(blocks)-i).
			Msg("discarding rest of missing blocks response")
		invalid := make(map[flow.Identifier]struct{}, len(blocks)-i)
		for _, rest := range blocks[i:] {
			invalid[rest.ID()] = struct{}{}
		}
		c.evict(invalid)
		break
	}
	return c.drain()
}

// drain pushes buffered blocks as long as the lowest buffered height is at
// most one above the head.
func (c *Core) drain() error {
	for {
		height, blocks, ok := c.buffer.PopReady(c.state.Head().Number())
		if !ok {
			break
		}

		invalid := make(map[flow.Identifier]struct{})
		for _, block := range blocks {
			blockID := block.ID()
			result, err := c.state.Push(block)
			if isException(err) {
				return err
			}
			if err != nil {
				c.log.Debug().Err(err).Hex("block_id", blockID[:]).Uint32("height", height).Msg("buffered block failed")
				if !state.IsOrphanBlockError(err) {
					invalid[blockID] = struct{}{}
				}
				continue
			}
			if result == protocol.PushResultIgnored {
				invalid[blockID] = struct{}{}
			}
		}
		if len(invalid) > 0 {
			c.evict(invalid)
		}
	}
	c.metrics.BufferedBlocks(c.buffer.Len())
	return nil
}

// isException returns true for push errors outside of the expected error
// taxonomy of MutableState.Push.
func isException(err error) bool {
	return err != nil && !state.IsOrphanBlockError(err) && !state.IsInvalidBlockError(err)
}

func (c *Core) evict(invalid map[flow.Identifier]struct{}) {
	evicted := c.buffer.EvictDescendantsOf(invalid)
	for range evicted {
		c.metrics.BlockDropped(metrics.DropReasonInvalidParent)
	}
	if len(evicted) > 0 {
		c.log.Debug().Int("evicted", len(evicted)).Msg("evicted descendants of invalid blocks")
	}
	c.metrics.BufferedBlocks(c.buffer.Len())
}

// BufferedBlocks returns the buffered blocks in ascending height.
func (c *Core) BufferedBlocks() []*flow.Block {
	return c.buffer.Entries()
}

// BufferedHeights returns the occupied buffer heights in ascending order.
func (c *Core) BufferedHeights() []uint32 {
	return c.buffer.Heights()
}

func (c *Core) String() string {
	return fmt.Sprintf("sync core (buffered: %d, heights: %v)", c.buffer.Len(), c.buffer.Heights())
}
