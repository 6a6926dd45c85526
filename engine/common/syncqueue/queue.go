package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammazero/workerpool"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module"
	"github.com/onflow/pos-sync/module/component"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/module/metrics"
	"github.com/onflow/pos-sync/network"
	"github.com/onflow/pos-sync/state"
	"github.com/onflow/pos-sync/state/protocol"
)

// ErrShutdown is returned by SubmitBlock once the queue stopped.
var ErrShutdown = errors.New("sync queue shut down")

type submission struct {
	block  *flow.Block
	origin peer.ID
	done   chan submitResult
}

type submitResult struct {
	result protocol.PushResult
	pushed bool
	err    error
}

// SyncQueue merges gossiped block announcements, missing blocks responses
// and locally submitted blocks into a single stream of pushes. A single
// worker owns the block buffer and is the only writer of the chain state.
type SyncQueue struct {
	*component.ComponentManager
	log       zerolog.Logger
	core      *Core
	requester module.RequestComponent
	pubsub    network.BlockPubSub
	metrics   module.SyncQueueMetrics

	relay     *workerpool.WorkerPool
	events    chan Event
	submitted chan *submission
	accepted  *atomic.Uint64

	// buffered is a snapshot of the buffer taken by the worker after each turn
	buffered *atomic.Value
}

func New(
	log zerolog.Logger,
	state protocol.MutableState,
	requester module.RequestComponent,
	pubsub network.BlockPubSub,
	metrics module.SyncQueueMetrics,
	opts ...OptionFunc,
) *SyncQueue {
	cfg := DefaultConfig()
	for _, apply := range opts {
		apply(&cfg)
	}

	log = log.With().Str("engine", "sync_queue").Logger()
	q := &SyncQueue{
		log:       log,
		core:      NewCore(log, cfg, state, requester, metrics),
		requester: requester,
		pubsub:    pubsub,
		metrics:   metrics,
		relay:     workerpool.New(int(cfg.RelayWorkers)),
		events:    make(chan Event, cfg.EventCapacity),
		submitted: make(chan *submission),
		accepted:  atomic.NewUint64(0),
		buffered:  &atomic.Value{},
	}
	q.buffered.Store([]*flow.Block{})

	q.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(q.loop).
		Build()
	return q
}

// Events returns the channel of sync queue events. It is closed when the
// gossip stream ends or the queue shuts down.
func (q *SyncQueue) Events() <-chan Event {
	return q.events
}

// BufferedBlocks returns the blocks waiting for their ancestors, in ascending height.
func (q *SyncQueue) BufferedBlocks() []*flow.Block {
	return q.buffered.Load().([]*flow.Block)
}

// NumPeers returns the number of peers synced with us.
func (q *SyncQueue) NumPeers() int {
	return q.requester.NumPeers()
}

// Peers returns all connected peers.
func (q *SyncQueue) Peers() []peer.ID {
	return q.requester.Peers()
}

// AcceptedBlockAnnouncements returns the number of announced blocks which
// immediately extended the chain.
func (q *SyncQueue) AcceptedBlockAnnouncements() uint64 {
	return q.accepted.Load()
}

// SubmitBlock routes a block, for example one produced locally, through the
// worker. It returns the push result if the block was pushed right away.
// Expected errors during normal operations:
//   - ErrShutdown if the queue stopped
//   - context errors if ctx expires first
//   - the invalid block errors of protocol.MutableState.Push
func (q *SyncQueue) SubmitBlock(ctx context.Context, block *flow.Block, origin peer.ID) (protocol.PushResult, bool, error) {
	sub := &submission{block: block, origin: origin, done: make(chan submitResult, 1)}
	select {
	case q.submitted <- sub:
	case <-q.ShutdownSignal():
		return 0, false, ErrShutdown
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
	select {
	case res := <-sub.done:
		return res.result, res.pushed, res.err
	case <-q.ShutdownSignal():
		return 0, false, ErrShutdown
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

func (q *SyncQueue) loop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	defer close(q.events)
	defer q.relay.StopWait()
	ready()

	announcements := q.pubsub.Announcements()
	requests := q.requester.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case announcement, ok := <-announcements:
			if !ok {
				q.log.Info().Msg("gossip stream ended")
				return
			}
			err := q.onAnnouncement(ctx, announcement)
			if err != nil {
				ctx.Throw(err)
				return
			}
		case event, ok := <-requests:
			if !ok {
				if ctx.Err() != nil {
					// the requester stopped first during shutdown
					return
				}
				ctx.Throw(fmt.Errorf("requester event stream closed unexpectedly"))
				return
			}
			err := q.onRequestEvent(ctx, event)
			if err != nil {
				ctx.Throw(err)
				return
			}
		case sub := <-q.submitted:
			result, pushed, err := q.core.OnBlockAnnounced(sub.block, sub.origin)
			sub.done <- submitResult{result: result, pushed: pushed, err: err}
			if err != nil && !state.IsInvalidBlockError(err) {
				ctx.Throw(fmt.Errorf("could not process submitted block: %w", err))
				return
			}
			if pushed && result.ExtendsChain() {
				q.emit(ctx, Event{Type: EventReceivedBlocks, Peer: sub.origin})
			}
		}
		q.buffered.Store(q.core.BufferedBlocks())
	}
}

// onAnnouncement processes a gossiped block and submits its relay verdict.
// No errors are expected during normal operations.
func (q *SyncQueue) onAnnouncement(ctx context.Context, announcement *network.BlockAnnouncement) error {
	q.metrics.AnnouncementReceived()
	block := announcement.Block
	blockID := block.ID()
	log := q.log.With().
		Hex("block_id", blockID[:]).
		Uint32("height", block.Number()).
		Str("origin", announcement.Origin.String()).
		Logger()

	if q.requester.NumPeers() == 0 {
		log.Debug().Msg("ignoring announced block, no synced peers")
		q.metrics.BlockDropped(metrics.DropReasonNoSyncedPeers)
		q.submitVerdict(announcement.MessageID, network.MsgIgnore)
		return nil
	}

	result, pushed, err := q.core.OnBlockAnnounced(block, announcement.Origin)
	if state.IsInvalidBlockError(err) {
		log.Warn().Err(err).Msg("announced block is invalid")
		q.submitVerdict(announcement.MessageID, network.MsgReject)
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not process announced block %x: %w", blockID, err)
	}
	if !pushed {
		q.submitVerdict(announcement.MessageID, network.MsgIgnore)
		return nil
	}

	q.submitVerdict(announcement.MessageID, verdict(result))
	if result.ExtendsChain() {
		q.accepted.Inc()
		q.metrics.AnnouncementAccepted()
		log.Debug().Str("result", result.String()).Msg("announced block extended the chain")
		q.emit(ctx, Event{Type: EventReceivedBlocks, Peer: announcement.Origin})
	}
	return nil
}

// verdict maps a push result to the relay verdict of the announcement.
func verdict(result protocol.PushResult) network.MsgAcceptance {
	switch result {
	case protocol.PushResultKnown, protocol.PushResultExtended, protocol.PushResultRebranched:
		return network.MsgAccept
	default:
		return network.MsgIgnore
	}
}

func (q *SyncQueue) submitVerdict(id network.MessageID, acceptance network.MsgAcceptance) {
	q.relay.Submit(func() {
		ok, err := q.pubsub.ValidateMessage(id, acceptance)
		if err != nil {
			q.log.Warn().Err(err).Str("message_id", string(id)).Msg("could not submit relay verdict")
			return
		}
		if !ok {
			q.log.Debug().Str("message_id", string(id)).Msg("relay verdict arrived after validation expired")
		}
	})
}

// onRequestEvent processes an event of the requester.
// No errors are expected during normal operations.
func (q *SyncQueue) onRequestEvent(ctx context.Context, event module.RequestEvent) error {
	switch event.Type {
	case module.RequestEventReceivedBlocks:
		err := q.core.OnMissingBlocksReceived(event.Blocks)
		if err != nil {
			return fmt.Errorf("could not process missing blocks from %s: %w", event.Peer, err)
		}
		q.emit(ctx, Event{Type: EventReceivedBlocks, Peer: event.Peer})
	case module.RequestEventPeerMacroSynced:
		q.emit(ctx, Event{Type: EventPeerMacroSynced, Peer: event.Peer})
	case module.RequestEventPeerLeft:
		q.emit(ctx, Event{Type: EventPeerLeft, Peer: event.Peer})
	default:
		q.log.Warn().Str("type", event.Type.String()).Msg("unknown requester event")
	}
	return nil
}

func (q *SyncQueue) emit(ctx context.Context, event Event) {
	select {
	case q.events <- event:
	case <-ctx.Done():
	}
}
