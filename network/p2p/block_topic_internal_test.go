package p2p

import (
	"context"
	"testing"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/onflow/pos-sync/model/messages"
	"github.com/onflow/pos-sync/network"
	"github.com/onflow/pos-sync/utils/unittest"
)

func TestValidateRejectsMalformedAnnouncements(t *testing.T) {
	topic := &BlockTopic{
		log:           unittest.Logger(),
		timeout:       DefaultValidationTimeout,
		announcements: make(chan *network.BlockAnnouncement, 1),
		stop:          make(chan struct{}),
		pending:       make(map[network.MessageID]chan network.MsgAcceptance),
	}
	builder := unittest.NewChainBuilder(t, 2)
	block := builder.Extend(builder.Genesis, 0, unittest.TransactionFixture())

	encode := func(announcement *messages.BlockAnnouncement) []byte {
		data, err := msgpack.Marshal(announcement)
		require.NoError(t, err)
		return data
	}
	cases := map[string][]byte{
		"undecodable":        []byte("not a block"),
		"missing block":      encode(&messages.BlockAnnouncement{}),
		"block without body": encode(&messages.BlockAnnouncement{Block: block.WithoutBody()}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			msg := &pubsub.Message{Message: &pb.Message{Data: data}}
			result := topic.validate(context.Background(), "peer-a", msg)
			assert.Equal(t, pubsub.ValidationReject, result)
			assert.Empty(t, topic.announcements)
		})
	}
}
