package requester

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sony/gobreaker"
)

type peerMode int

const (
	// peerModeMacroSync means we are still catching up with the peer's chain.
	peerModeMacroSync peerMode = iota + 1
	// peerModeIncremental means the peer is synced and serves missing blocks requests.
	peerModeIncremental
)

func (m peerMode) String() string {
	switch m {
	case peerModeMacroSync:
		return "macro_sync"
	case peerModeIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

type peerAgent struct {
	id      peer.ID
	mode    peerMode
	syncing bool // a catch-up round with the peer is running
	resync  bool // sync mode was requested while a round was running
	breaker *gobreaker.CircuitBreaker
}
