package requester

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"go.uber.org/atomic"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/model/messages"
	"github.com/onflow/pos-sync/module"
	"github.com/onflow/pos-sync/module/component"
	"github.com/onflow/pos-sync/module/irrecoverable"
)

var errNoSyncedPeers = errors.New("no synced peers available")

// Fetcher sends a missing blocks request to a single peer.
type Fetcher interface {
	FetchMissingBlocks(ctx context.Context, peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error)
}

// ChainLocators provides the locators of the local main chain.
type ChainLocators interface {
	BlockLocators() ([]flow.Identifier, error)
}

// Engine keeps the registry of connected peers and fetches missing blocks from
// them. A new peer first goes through catch-up rounds, which request its main
// chain beyond our locators, until a response comes back incomplete. The peer
// is then synced and serves targeted missing blocks requests.
type Engine struct {
	*component.ComponentManager
	log     zerolog.Logger
	cfg     Config
	metrics module.RequesterMetrics
	fetcher Fetcher
	chain   ChainLocators

	pool   *workerpool.WorkerPool
	events chan module.RequestEvent
	stop   context.Context
	cancel context.CancelFunc
	nonce  *atomic.Uint64

	mu      sync.Mutex
	stopped bool
	peers   map[peer.ID]*peerAgent
	pending map[flow.Identifier]struct{}
}

var _ module.RequestComponent = (*Engine)(nil)

func New(
	log zerolog.Logger,
	metrics module.RequesterMetrics,
	fetcher Fetcher,
	chain ChainLocators,
	opts ...OptionFunc,
) *Engine {
	cfg := DefaultConfig()
	for _, apply := range opts {
		apply(&cfg)
	}

	stop, cancel := context.WithCancel(context.Background())
	e := &Engine{
		log:     log.With().Str("engine", "requester").Logger(),
		cfg:     cfg,
		metrics: metrics,
		fetcher: fetcher,
		chain:   chain,
		pool:    workerpool.New(int(cfg.Workers)),
		events:  make(chan module.RequestEvent, cfg.EventCapacity),
		stop:    stop,
		cancel:  cancel,
		nonce:   atomic.NewUint64(0),
		peers:   make(map[peer.ID]*peerAgent),
		pending: make(map[flow.Identifier]struct{}),
	}

	e.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(e.shutdownOnCancel).
		Build()
	return e
}

func (e *Engine) Events() <-chan module.RequestEvent {
	return e.events
}

// AddPeer registers a connected peer and starts catching up with it.
func (e *Engine) AddPeer(peerID peer.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.peers[peerID]; ok {
		return
	}
	e.peers[peerID] = &peerAgent{
		id:      peerID,
		mode:    peerModeMacroSync,
		breaker: e.newBreaker(peerID),
	}
	e.reportPeers()
	e.log.Debug().Str("peer", peerID.String()).Msg("peer added")
	e.submit(func() { e.syncPeer(peerID) })
}

// RemovePeer drops a disconnected peer and emits a PeerLeft event.
func (e *Engine) RemovePeer(peerID peer.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.peers[peerID]; !ok {
		return
	}
	delete(e.peers, peerID)
	e.reportPeers()
	e.log.Debug().Str("peer", peerID.String()).Msg("peer removed")
	e.submit(func() {
		e.emit(module.RequestEvent{Type: module.RequestEventPeerLeft, Peer: peerID})
	})
}

func (e *Engine) PutPeerIntoSyncMode(peerID peer.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.peers[peerID]
	if !ok {
		return
	}
	agent.mode = peerModeMacroSync
	e.reportPeers()
	if agent.syncing {
		// the running round may already be past the blocks the peer announced
		agent.resync = true
		return
	}
	e.log.Info().Str("peer", peerID.String()).Msg("peer put into sync mode")
	e.submit(func() { e.syncPeer(peerID) })
}

func (e *Engine) NumPeers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.syncedPeers())
}

func (e *Engine) Peers() []peer.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	peers := maps.Keys(e.peers)
	slices.Sort(peers)
	return peers
}

// RequestMissingBlocks fetches the blocks between the newest known locator
// and the target from a synced peer. Concurrent requests for the same target
// are merged.
func (e *Engine) RequestMissingBlocks(targetID flow.Identifier, locators []flow.Identifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[targetID]; ok {
		return
	}
	e.pending[targetID] = struct{}{}
	locators = slices.Clone(locators)
	e.submit(func() { e.fetchTarget(targetID, locators) })
}

// fetchTarget tries the synced peers in turn until one returns blocks.
func (e *Engine) fetchTarget(targetID flow.Identifier, locators []flow.Identifier) {
	defer func() {
		e.mu.Lock()
		delete(e.pending, targetID)
		e.mu.Unlock()
	}()
	log := e.log.With().Hex("target_id", targetID[:]).Logger()

	req := &messages.MissingBlocksRequest{
		Nonce:    e.nonce.Inc(),
		TargetID: targetID,
		Locators: locators,
	}

	var res *messages.MissingBlocksResponse
	var from peer.ID
	attempt := 0
	err := retry.Do(e.stop, e.backoff(), func(ctx context.Context) error {
		peerID, breaker, ok := e.selectPeer(attempt)
		attempt++
		if !ok {
			return retry.RetryableError(errNoSyncedPeers)
		}
		e.metrics.RequestSent()
		out, err := breaker.Execute(func() (interface{}, error) {
			return e.fetcher.FetchMissingBlocks(ctx, peerID, req)
		})
		if err != nil {
			log.Debug().Err(err).Str("peer", peerID.String()).Msg("missing blocks request failed")
			return retry.RetryableError(err)
		}
		r, _ := out.(*messages.MissingBlocksResponse)
		if r == nil || len(r.Blocks) == 0 {
			return retry.RetryableError(fmt.Errorf("peer %s returned no blocks", peerID))
		}
		res, from = r, peerID
		return nil
	})
	if err != nil {
		if e.stop.Err() != nil {
			return
		}
		e.metrics.RequestFailed()
		log.Warn().Err(err).Int("attempts", attempt).Msg("could not fetch missing blocks")
		return
	}

	e.metrics.BlocksReceived(len(res.Blocks))
	log.Debug().Int("blocks", len(res.Blocks)).Str("peer", from.String()).Msg("received missing blocks")
	e.emit(module.RequestEvent{Type: module.RequestEventReceivedBlocks, Blocks: res.Blocks, Peer: from})
}

// syncPeer runs catch-up rounds with the peer. Each round requests the peer's
// main chain above the newest block we know; a round returning less than a
// full response completes the catch-up.
func (e *Engine) syncPeer(peerID peer.ID) {
	if !e.beginSync(peerID) {
		return
	}
	synced := false
	defer func() { e.endSync(peerID, synced) }()
	log := e.log.With().Str("peer", peerID.String()).Logger()

	locators, err := e.chain.BlockLocators()
	if err != nil {
		log.Error().Err(err).Msg("could not compute block locators")
		return
	}

	roundLocators := locators
	for e.stop.Err() == nil {
		req := &messages.MissingBlocksRequest{
			Nonce:    e.nonce.Inc(),
			Locators: roundLocators,
		}
		var res *messages.MissingBlocksResponse
		err := retry.Do(e.stop, e.backoff(), func(ctx context.Context) error {
			e.metrics.RequestSent()
			var err error
			res, err = e.fetcher.FetchMissingBlocks(ctx, peerID, req)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			if e.stop.Err() == nil {
				e.metrics.RequestFailed()
				log.Warn().Err(err).Msg("could not sync with peer")
			}
			return
		}

		if len(res.Blocks) > 0 {
			e.metrics.BlocksReceived(len(res.Blocks))
			e.emit(module.RequestEvent{Type: module.RequestEventReceivedBlocks, Blocks: res.Blocks, Peer: peerID})
			lastID := res.Blocks[len(res.Blocks)-1].ID()
			roundLocators = append([]flow.Identifier{lastID}, locators...)
		}
		if len(res.Blocks) < messages.MaxMissingBlocks {
			synced = true
			return
		}
	}
}

// beginSync marks a catch-up round as running. It returns false if the peer
// left or a round is already running.
func (e *Engine) beginSync(peerID peer.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.peers[peerID]
	if !ok || agent.syncing || agent.mode != peerModeMacroSync {
		return false
	}
	agent.syncing = true
	return true
}

func (e *Engine) endSync(peerID peer.ID, synced bool) {
	e.mu.Lock()
	agent, ok := e.peers[peerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	agent.syncing = false
	if agent.resync {
		agent.resync = false
		e.log.Debug().Str("peer", peerID.String()).Msg("peer put into sync mode during catch-up, starting another round")
		e.submit(func() { e.syncPeer(peerID) })
		e.mu.Unlock()
		return
	}
	if synced {
		agent.mode = peerModeIncremental
		e.reportPeers()
	}
	e.mu.Unlock()

	if synced {
		e.log.Info().Str("peer", peerID.String()).Msg("peer synced")
		e.emit(module.RequestEvent{Type: module.RequestEventPeerMacroSynced, Peer: peerID})
	}
}

// selectPeer picks a synced peer whose circuit breaker is not open, rotating
// through them by attempt.
func (e *Engine) selectPeer(attempt int) (peer.ID, *gobreaker.CircuitBreaker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var available []*peerAgent
	for _, peerID := range e.syncedPeers() {
		agent := e.peers[peerID]
		if agent.breaker.State() != gobreaker.StateOpen {
			available = append(available, agent)
		}
	}
	if len(available) == 0 {
		return "", nil, false
	}
	agent := available[attempt%len(available)]
	return agent.id, agent.breaker, true
}

// newBreaker opens after BreakerFailures consecutive failed requests to the
// peer and lets a single request through once BreakerTimeout has passed.
func (e *Engine) newBreaker(peerID peer.ID) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        peerID.String(),
		MaxRequests: 1,
		Timeout:     e.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.log.Debug().
				Str("peer", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("peer circuit breaker changed state")
		},
	})
}

// syncedPeers returns the synced peers in a stable order. Callers hold the lock.
func (e *Engine) syncedPeers() []peer.ID {
	var synced []peer.ID
	for peerID, agent := range e.peers {
		if agent.mode == peerModeIncremental {
			synced = append(synced, peerID)
		}
	}
	slices.Sort(synced)
	return synced
}

// reportPeers updates the peer metrics. Callers hold the lock.
func (e *Engine) reportPeers() {
	e.metrics.Peers(len(e.syncedPeers()), len(e.peers))
}

func (e *Engine) backoff() retry.Backoff {
	backoff := retry.NewExponential(e.cfg.RetryInitial)
	backoff = retry.WithCappedDuration(e.cfg.RetryMaximum, backoff)
	return retry.WithMaxRetries(e.cfg.MaxAttempts-1, backoff)
}

// submit queues a task on the worker pool. Callers hold the lock.
func (e *Engine) submit(task func()) {
	if e.stopped {
		return
	}
	e.pool.Submit(task)
}

func (e *Engine) emit(event module.RequestEvent) {
	select {
	case e.events <- event:
	case <-e.stop.Done():
	}
}

// shutdownOnCancel stops the worker pool on shutdown and closes the events
// channel once no task can emit anymore.
func (e *Engine) shutdownOnCancel(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	<-ctx.Done()

	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cancel()
	e.pool.StopWait()
	close(e.events)
}
