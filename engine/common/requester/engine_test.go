package requester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/model/messages"
	"github.com/onflow/pos-sync/module"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/module/metrics"
	"github.com/onflow/pos-sync/utils/unittest"
)

// fetcherFunc adapts a function to the Fetcher interface and records requests.
type fetcherFunc struct {
	mu       sync.Mutex
	requests []*messages.MissingBlocksRequest
	fetch    func(peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error)
}

func (f *fetcherFunc) FetchMissingBlocks(_ context.Context, peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.fetch(peerID, req)
}

func (f *fetcherFunc) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fetcherFunc) request(i int) *messages.MissingBlocksRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type staticLocators []flow.Identifier

func (l staticLocators) BlockLocators() ([]flow.Identifier, error) {
	return l, nil
}

func blocks(n int) []*flow.Block {
	list := make([]*flow.Block, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, unittest.BlockFixture())
	}
	return list
}

func startEngine(t *testing.T, fetcher Fetcher, locators staticLocators, opts ...OptionFunc) (*Engine, context.CancelFunc) {
	opts = append([]OptionFunc{
		WithRetryInitial(time.Millisecond),
		WithMaxAttempts(2),
	}, opts...)
	e := New(unittest.Logger(), metrics.NewNoopCollector(), fetcher, locators, opts...)
	ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
	e.Start(ctx)
	unittest.RequireCloseBefore(t, e.Ready(), time.Second, "requester did not start")
	t.Cleanup(func() {
		cancel()
		unittest.RequireCloseBefore(t, e.Done(), time.Second, "requester did not stop")
	})
	return e, cancel
}

func nextEvent(t *testing.T, e *Engine) module.RequestEvent {
	select {
	case event, ok := <-e.Events():
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no request event")
	}
	return module.RequestEvent{}
}

func TestAddPeer_Synced(t *testing.T) {
	response := blocks(3)
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		return &messages.MissingBlocksResponse{Blocks: response}, nil
	}}
	locators := staticLocators(unittest.IdentifierListFixture(2))
	e, _ := startEngine(t, fetcher, locators)

	e.AddPeer("peer-a")
	e.AddPeer("peer-a")

	event := nextEvent(t, e)
	assert.Equal(t, module.RequestEventReceivedBlocks, event.Type)
	assert.Equal(t, peer.ID("peer-a"), event.Peer)
	assert.Equal(t, response, event.Blocks)

	event = nextEvent(t, e)
	assert.Equal(t, module.RequestEventPeerMacroSynced, event.Type)
	assert.Equal(t, peer.ID("peer-a"), event.Peer)

	assert.Equal(t, 1, e.NumPeers())
	assert.Equal(t, []peer.ID{"peer-a"}, e.Peers())
	require.Equal(t, 1, fetcher.count())
	assert.Equal(t, flow.ZeroID, fetcher.request(0).TargetID)
	assert.Equal(t, []flow.Identifier(locators), fetcher.request(0).Locators)
}

func TestAddPeer_SeveralRounds(t *testing.T) {
	full := blocks(messages.MaxMissingBlocks)
	fetcher := &fetcherFunc{fetch: func(_ peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		if req.Locators[0] == full[len(full)-1].ID() {
			return &messages.MissingBlocksResponse{}, nil
		}
		return &messages.MissingBlocksResponse{Blocks: full}, nil
	}}
	locators := staticLocators(unittest.IdentifierListFixture(1))
	e, _ := startEngine(t, fetcher, locators)

	e.AddPeer("peer-a")
	assert.Equal(t, module.RequestEventReceivedBlocks, nextEvent(t, e).Type)
	assert.Equal(t, module.RequestEventPeerMacroSynced, nextEvent(t, e).Type)

	require.Equal(t, 2, fetcher.count())
	// the second round continues after the last received block
	assert.Equal(t, []flow.Identifier{full[len(full)-1].ID(), locators[0]}, fetcher.request(1).Locators)
}

func TestRequestMissingBlocks(t *testing.T) {
	targetID := unittest.IdentifierFixture()
	response := blocks(2)
	release := make(chan struct{})
	fetcher := &fetcherFunc{fetch: func(_ peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		if req.TargetID == flow.ZeroID {
			return &messages.MissingBlocksResponse{}, nil
		}
		<-release
		return &messages.MissingBlocksResponse{Nonce: req.Nonce, Blocks: response}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.AddPeer("peer-a")
	assert.Equal(t, module.RequestEventPeerMacroSynced, nextEvent(t, e).Type)

	locators := unittest.IdentifierListFixture(2)
	e.RequestMissingBlocks(targetID, locators)
	e.RequestMissingBlocks(targetID, locators)
	close(release)

	event := nextEvent(t, e)
	assert.Equal(t, module.RequestEventReceivedBlocks, event.Type)
	assert.Equal(t, response, event.Blocks)
	assert.Equal(t, peer.ID("peer-a"), event.Peer)

	// one catch-up round and one merged request
	require.Equal(t, 2, fetcher.count())
	assert.Equal(t, targetID, fetcher.request(1).TargetID)
	assert.Equal(t, []flow.Identifier(locators), fetcher.request(1).Locators)
}

func TestRequestMissingBlocks_RetriesOtherPeer(t *testing.T) {
	targetID := unittest.IdentifierFixture()
	response := blocks(1)
	fetcher := &fetcherFunc{fetch: func(peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		if req.TargetID == flow.ZeroID {
			return &messages.MissingBlocksResponse{}, nil
		}
		if peerID == "peer-a" {
			return nil, errors.New("stream reset")
		}
		return &messages.MissingBlocksResponse{Blocks: response}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.AddPeer("peer-a")
	nextEvent(t, e)
	e.AddPeer("peer-b")
	nextEvent(t, e)
	require.Equal(t, 2, e.NumPeers())

	e.RequestMissingBlocks(targetID, nil)
	event := nextEvent(t, e)
	assert.Equal(t, module.RequestEventReceivedBlocks, event.Type)
	assert.Equal(t, peer.ID("peer-b"), event.Peer)
}

func TestRequestMissingBlocks_SkipsFailingPeer(t *testing.T) {
	var failures atomic.Int32
	fetcher := &fetcherFunc{fetch: func(peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		if req.TargetID == flow.ZeroID {
			return &messages.MissingBlocksResponse{}, nil
		}
		if peerID == "peer-a" {
			failures.Inc()
			return nil, errors.New("stream reset")
		}
		return &messages.MissingBlocksResponse{Blocks: blocks(1)}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{}, WithBreaker(1, time.Minute))

	e.AddPeer("peer-a")
	nextEvent(t, e)
	e.AddPeer("peer-b")
	nextEvent(t, e)

	e.RequestMissingBlocks(unittest.IdentifierFixture(), nil)
	assert.Equal(t, peer.ID("peer-b"), nextEvent(t, e).Peer)
	require.Equal(t, int32(1), failures.Load())

	// the breaker of peer-a is open, so every further request goes to peer-b first
	for i := 0; i < 3; i++ {
		e.RequestMissingBlocks(unittest.IdentifierFixture(), nil)
		assert.Equal(t, peer.ID("peer-b"), nextEvent(t, e).Peer)
	}
	assert.Equal(t, int32(1), failures.Load())
	assert.Equal(t, 2, e.NumPeers())
}

func TestRequestMissingBlocks_NoPeers(t *testing.T) {
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		return nil, errors.New("unexpected fetch")
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.RequestMissingBlocks(unittest.IdentifierFixture(), nil)
	select {
	case event := <-e.Events():
		require.Failf(t, "unexpected event", "%v", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, fetcher.count())
}

func TestRemovePeer(t *testing.T) {
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		return &messages.MissingBlocksResponse{}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.AddPeer("peer-a")
	nextEvent(t, e)
	e.RemovePeer("peer-a")
	e.RemovePeer("peer-a")

	event := nextEvent(t, e)
	assert.Equal(t, module.RequestEventPeerLeft, event.Type)
	assert.Equal(t, peer.ID("peer-a"), event.Peer)
	assert.Equal(t, 0, e.NumPeers())
	assert.Empty(t, e.Peers())

	// unknown peers are ignored
	e.PutPeerIntoSyncMode("peer-a")
	assert.Empty(t, e.Peers())
}

func TestPutPeerIntoSyncMode(t *testing.T) {
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		return &messages.MissingBlocksResponse{}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.AddPeer("peer-a")
	assert.Equal(t, module.RequestEventPeerMacroSynced, nextEvent(t, e).Type)
	assert.Equal(t, 1, e.NumPeers())

	e.PutPeerIntoSyncMode("peer-a")
	assert.Equal(t, module.RequestEventPeerMacroSynced, nextEvent(t, e).Type)
	assert.Equal(t, 1, e.NumPeers())
	assert.Equal(t, 2, fetcher.count())
}

// Putting a peer into sync mode while a catch-up round is running starts
// another round instead of marking the peer synced.
func TestPutPeerIntoSyncMode_DuringCatchUp(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return &messages.MissingBlocksResponse{}, nil
	}}
	e, _ := startEngine(t, fetcher, staticLocators{})

	e.AddPeer("peer-a")
	unittest.RequireCloseBefore(t, started, time.Second, "catch-up round did not start")
	e.PutPeerIntoSyncMode("peer-a")
	close(release)

	assert.Equal(t, module.RequestEventPeerMacroSynced, nextEvent(t, e).Type)
	assert.Equal(t, 2, fetcher.count())
	assert.Equal(t, 1, e.NumPeers())

	select {
	case event := <-e.Events():
		require.Failf(t, "unexpected event", "%v", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownClosesEvents(t *testing.T) {
	fetcher := &fetcherFunc{fetch: func(peer.ID, *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
		return &messages.MissingBlocksResponse{}, nil
	}}
	e, cancel := startEngine(t, fetcher, staticLocators{})

	cancel()
	unittest.RequireCloseBefore(t, e.Done(), time.Second, "requester did not stop")
	_, ok := <-e.Events()
	assert.False(t, ok)

	// peers added after shutdown are registered but not synced
	e.AddPeer("peer-a")
	assert.Equal(t, 0, e.NumPeers())
}
