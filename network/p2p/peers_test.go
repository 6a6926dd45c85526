package p2p_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/pos-sync/network/p2p"
)

type peerSet struct {
	mu    sync.Mutex
	peers map[peer.ID]struct{}
}

func (s *peerSet) AddPeer(peerID peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[peerID] = struct{}{}
}

func (s *peerSet) RemovePeer(peerID peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
}

func (s *peerSet) has(peerID peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[peerID]
	return ok
}

func TestTrackPeers(t *testing.T) {
	mn, err := mocknet.FullMeshLinked(3)
	require.NoError(t, err)
	defer mn.Close()
	hosts := mn.Hosts()

	_, err = mn.ConnectPeers(hosts[0].ID(), hosts[1].ID())
	require.NoError(t, err)

	tracker := &peerSet{peers: make(map[peer.ID]struct{})}
	p2p.TrackPeers(hosts[0], tracker)
	assert.True(t, tracker.has(hosts[1].ID()))

	_, err = mn.ConnectPeers(hosts[0].ID(), hosts[2].ID())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tracker.has(hosts[2].ID())
	}, 2*time.Second, 10*time.Millisecond)

	err = mn.DisconnectPeers(hosts[0].ID(), hosts[1].ID())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !tracker.has(hosts[1].ID())
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, tracker.has(hosts[2].ID()))
}

func TestConnectPeers(t *testing.T) {
	mn, err := mocknet.FullMeshLinked(2)
	require.NoError(t, err)
	defer mn.Close()
	hosts := mn.Hosts()

	err = p2p.ConnectPeers(context.Background(), hosts[0], []string{"not-a-multiaddr"})
	assert.Error(t, err)
	assert.Empty(t, hosts[0].Network().Peers())
}
