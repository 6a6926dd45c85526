package p2p

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pnet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// PeerTracker is notified about connected and disconnected peers.
type PeerTracker interface {
	AddPeer(peerID peer.ID)
	RemovePeer(peerID peer.ID)
}

// TrackPeers reports the peers of the host to the tracker, starting with the
// peers which are already connected. A peer is removed once its last
// connection closed.
func TrackPeers(h host.Host, tracker PeerTracker) {
	h.Network().Notify(&libp2pnet.NotifyBundle{
		ConnectedF: func(_ libp2pnet.Network, conn libp2pnet.Conn) {
			tracker.AddPeer(conn.RemotePeer())
		},
		DisconnectedF: func(n libp2pnet.Network, conn libp2pnet.Conn) {
			if n.Connectedness(conn.RemotePeer()) != libp2pnet.Connected {
				tracker.RemovePeer(conn.RemotePeer())
			}
		},
	})
	for _, peerID := range h.Network().Peers() {
		tracker.AddPeer(peerID)
	}
}

// ConnectPeers connects the host to the peers at the given /p2p multiaddrs.
// All addresses are tried; the failures are returned together.
func ConnectPeers(ctx context.Context, h host.Host, addrs []string) error {
	var errs *multierror.Error
	for _, addr := range addrs {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid peer address %s: %w", addr, err))
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("invalid peer address %s: %w", addr, err))
			continue
		}
		err = h.Connect(ctx, *info)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not connect to %s: %w", info.ID, err))
		}
	}
	return errs.ErrorOrNil()
}
