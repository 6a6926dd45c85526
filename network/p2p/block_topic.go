package p2p

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/model/messages"
	"github.com/onflow/pos-sync/module/component"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/network"
)

const (
	// DefaultValidationTimeout bounds how long gossip waits for a relay verdict.
	DefaultValidationTimeout = 10 * time.Second

	defaultAnnouncementCapacity = 64
)

// BlockTopic connects the blocks gossip topic to the sync queue. Received
// blocks are held by an asynchronous topic validator until the queue hands in
// a relay verdict through ValidateMessage or the validation times out.
type BlockTopic struct {
	*component.ComponentManager
	log     zerolog.Logger
	ps      *pubsub.PubSub
	topic   *pubsub.Topic
	sub     *pubsub.Subscription
	timeout time.Duration

	announcements chan *network.BlockAnnouncement
	stop          chan struct{}
	inflight      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending map[network.MessageID]chan network.MsgAcceptance
}

var _ network.BlockPubSub = (*BlockTopic)(nil)

// NewBlockTopic registers the topic validator and joins the blocks topic.
func NewBlockTopic(log zerolog.Logger, ps *pubsub.PubSub, timeout time.Duration) (*BlockTopic, error) {
	if timeout <= 0 {
		timeout = DefaultValidationTimeout
	}
	t := &BlockTopic{
		log:           log.With().Str("module", "block_topic").Logger(),
		ps:            ps,
		timeout:       timeout,
		announcements: make(chan *network.BlockAnnouncement, defaultAnnouncementCapacity),
		stop:          make(chan struct{}),
		pending:       make(map[network.MessageID]chan network.MsgAcceptance),
	}

	err := ps.RegisterTopicValidator(network.TopicBlocks, t.validate, pubsub.WithValidatorTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("could not register block validator: %w", err)
	}
	t.topic, err = ps.Join(network.TopicBlocks)
	if err != nil {
		return nil, fmt.Errorf("could not join topic %s: %w", network.TopicBlocks, err)
	}
	t.sub, err = t.topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to topic %s: %w", network.TopicBlocks, err)
	}

	t.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(t.drainSubscription).
		Build()
	return t, nil
}

func (t *BlockTopic) Announcements() <-chan *network.BlockAnnouncement {
	return t.announcements
}

func (t *BlockTopic) ValidateMessage(id network.MessageID, acceptance network.MsgAcceptance) (bool, error) {
	switch acceptance {
	case network.MsgAccept, network.MsgIgnore, network.MsgReject:
	default:
		return false, fmt.Errorf("%w: %d", network.ErrInvalidAcceptance, acceptance)
	}

	t.mu.Lock()
	verdict, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	verdict <- acceptance
	return true, nil
}

// Publish gossips a locally produced block.
func (t *BlockTopic) Publish(ctx context.Context, block *flow.Block) error {
	data, err := msgpack.Marshal(&messages.BlockAnnouncement{Block: block})
	if err != nil {
		return fmt.Errorf("could not encode block announcement: %w", err)
	}
	return t.topic.Publish(ctx, data)
}

// validate hands a received block to the queue and waits for its verdict.
func (t *BlockTopic) validate(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	if msg.Local {
		return pubsub.ValidationAccept
	}

	var announcement messages.BlockAnnouncement
	err := msgpack.Unmarshal(msg.Data, &announcement)
	if err != nil || announcement.Block == nil || announcement.Block.Header == nil || !announcement.Block.HasBody() {
		t.log.Warn().Err(err).Str("peer", from.String()).Msg("rejecting malformed block announcement")
		return pubsub.ValidationReject
	}

	id := network.MessageID(msg.ID)
	verdict := make(chan network.MsgAcceptance, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return pubsub.ValidationIgnore
	}
	t.pending[id] = verdict
	t.inflight.Add(1)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		t.inflight.Done()
	}()

	select {
	case t.announcements <- &network.BlockAnnouncement{Block: announcement.Block, MessageID: id, Origin: msg.ReceivedFrom}:
	case <-ctx.Done():
		return pubsub.ValidationIgnore
	case <-t.stop:
		return pubsub.ValidationIgnore
	}

	select {
	case acceptance := <-verdict:
		return validationResult(acceptance)
	case <-ctx.Done():
		t.log.Debug().Str("message_id", string(id)).Msg("block validation expired")
		return pubsub.ValidationIgnore
	case <-t.stop:
		return pubsub.ValidationIgnore
	}
}

// drainSubscription consumes validated messages so the subscription never
// backs up. The blocks were already delivered by the validator.
func (t *BlockTopic) drainSubscription(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()
	defer t.shutdown()

	for {
		_, err := t.sub.Next(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, pubsub.ErrSubscriptionCancelled) {
			return
		}
		ctx.Throw(fmt.Errorf("block subscription failed: %w", err))
	}
}

// shutdown ends the subscription and closes the announcements channel once no
// validator can write to it anymore.
func (t *BlockTopic) shutdown() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	close(t.stop)
	t.inflight.Wait()

	t.sub.Cancel()
	err := t.ps.UnregisterTopicValidator(network.TopicBlocks)
	if err != nil {
		t.log.Warn().Err(err).Msg("could not unregister block validator")
	}
	err = t.topic.Close()
	if err != nil {
		t.log.Warn().Err(err).Msg("could not close block topic")
	}
	close(t.announcements)
}

func validationResult(acceptance network.MsgAcceptance) pubsub.ValidationResult {
	switch acceptance {
	case network.MsgAccept:
		return pubsub.ValidationAccept
	case network.MsgReject:
		return pubsub.ValidationReject
	default:
		return pubsub.ValidationIgnore
	}
}
