package module

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/onflow/pos-sync/model/flow"
)

// RequestEventType enumerates the events emitted by a RequestComponent.
type RequestEventType int

const (
	// RequestEventReceivedBlocks carries blocks answering a missing blocks request.
	RequestEventReceivedBlocks RequestEventType = iota + 1
	// RequestEventPeerMacroSynced signals that a peer caught up to our macro chain.
	RequestEventPeerMacroSynced
	// RequestEventPeerLeft signals that a peer disconnected.
	RequestEventPeerLeft
)

func (t RequestEventType) String() string {
	switch t {
	case RequestEventReceivedBlocks:
		return "received_blocks"
	case RequestEventPeerMacroSynced:
		return "peer_macro_synced"
	case RequestEventPeerLeft:
		return "peer_left"
	default:
		return "unknown"
	}
}

// RequestEvent is emitted asynchronously by a RequestComponent.
type RequestEvent struct {
	Type   RequestEventType
	Blocks []*flow.Block // ordered parent-first, set for RequestEventReceivedBlocks
	Peer   peer.ID
}

// RequestComponent fetches missing blocks from peers and tracks which peers
// are synced with us.
type RequestComponent interface {
	// RequestMissingBlocks asks peers for the blocks between the newest known
	// locator and the target. It does not block; the response is delivered as
	// a RequestEventReceivedBlocks event.
	RequestMissingBlocks(targetID flow.Identifier, locators []flow.Identifier)

	// PutPeerIntoSyncMode switches the peer back to batch synchronization. A
	// peer that disconnected in the meantime is ignored.
	PutPeerIntoSyncMode(peerID peer.ID)

	// NumPeers returns the number of peers which are synced with us.
	NumPeers() int

	// Peers returns the IDs of all connected peers.
	Peers() []peer.ID

	// Events returns the channel of request events. The channel is closed only
	// when the component shut down.
	Events() <-chan RequestEvent
}
