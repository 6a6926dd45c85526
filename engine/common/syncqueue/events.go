package syncqueue

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// EventType enumerates the events emitted by the sync queue.
type EventType int

const (
	// EventReceivedBlocks signals that received blocks extended the chain.
	EventReceivedBlocks EventType = iota + 1
	// EventPeerMacroSynced signals that a peer finished catching up.
	EventPeerMacroSynced
	// EventPeerLeft signals that a peer disconnected.
	EventPeerLeft
)

func (t EventType) String() string {
	switch t {
	case EventReceivedBlocks:
		return "received_blocks"
	case EventPeerMacroSynced:
		return "peer_macro_synced"
	case EventPeerLeft:
		return "peer_left"
	default:
		return "unknown"
	}
}

type Event struct {
	Type EventType
	Peer peer.ID // origin of the blocks, or the peer the event is about
}
