package network

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/onflow/pos-sync/model/flow"
)

// TopicBlocks is the gossip topic carrying block announcements.
const TopicBlocks = "blocks"

// MsgAcceptance is the relay verdict for a gossiped message.
type MsgAcceptance int

const (
	// MsgAccept relays the message to other peers.
	MsgAccept MsgAcceptance = iota + 1
	// MsgIgnore drops the message without penalizing the sender.
	MsgIgnore
	// MsgReject drops the message and penalizes the sender.
	MsgReject
)

func (a MsgAcceptance) String() string {
	switch a {
	case MsgAccept:
		return "accept"
	case MsgIgnore:
		return "ignore"
	case MsgReject:
		return "reject"
	default:
		return "invalid"
	}
}

// ErrInvalidAcceptance is returned by ValidateMessage for an unknown verdict.
var ErrInvalidAcceptance = errors.New("invalid message acceptance")

// MessageID identifies a gossiped message pending validation.
type MessageID string

// BlockAnnouncement is a block received on the blocks topic, waiting for its
// relay verdict.
type BlockAnnouncement struct {
	Block     *flow.Block
	MessageID MessageID
	Origin    peer.ID
}

// BlockPubSub delivers gossiped blocks and collects relay verdicts for them.
type BlockPubSub interface {
	// Announcements returns the channel of received blocks. The channel is
	// closed when the gossip subscription ends.
	Announcements() <-chan *BlockAnnouncement

	// ValidateMessage hands the relay verdict for a pending message to the
	// gossip router. It returns false if the message is no longer pending,
	// for example because its validation window expired.
	ValidateMessage(id MessageID, acceptance MsgAcceptance) (bool, error)
}
