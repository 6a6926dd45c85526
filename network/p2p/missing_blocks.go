package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/host"
	libp2pnet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v4"
	"golang.org/x/time/rate"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/model/messages"
	pstate "github.com/onflow/pos-sync/state/protocol"
	"github.com/onflow/pos-sync/storage"
)

const (
	// MissingBlocksProtocol is the stream protocol answering missing blocks requests.
	MissingBlocksProtocol = protocol.ID("/pos-sync/missing-blocks/1.0.0")

	// DefaultStreamTimeout bounds a single request and response exchange.
	DefaultStreamTimeout = 15 * time.Second

	// DefaultRequestRate and DefaultRequestBurst limit the requests served per peer.
	DefaultRequestRate  = rate.Limit(10)
	DefaultRequestBurst = 20

	maxMessageSize = 16 << 20

	limiterCacheSize = 1024
)

// MissingBlocksClient requests missing blocks from peers.
type MissingBlocksClient struct {
	host    host.Host
	timeout time.Duration
}

func NewMissingBlocksClient(h host.Host, timeout time.Duration) *MissingBlocksClient {
	if timeout <= 0 {
		timeout = DefaultStreamTimeout
	}
	return &MissingBlocksClient{
		host:    h,
		timeout: timeout,
	}
}

// FetchMissingBlocks sends the request to the peer and waits for its response.
func (c *MissingBlocksClient) FetchMissingBlocks(ctx context.Context, peerID peer.ID, req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.host.NewStream(ctx, peerID, MissingBlocksProtocol)
	if err != nil {
		return nil, fmt.Errorf("could not open stream to %s: %w", peerID, err)
	}
	defer stream.Close()

	deadline, _ := ctx.Deadline()
	_ = stream.SetDeadline(deadline)

	err = msgpack.NewEncoder(stream).Encode(req)
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	err = stream.CloseWrite()
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("could not close request stream: %w", err)
	}

	var res messages.MissingBlocksResponse
	err = msgpack.NewDecoder(io.LimitReader(stream, maxMessageSize)).Decode(&res)
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	if res.Nonce != req.Nonce {
		return nil, fmt.Errorf("response nonce %d does not match request nonce %d", res.Nonce, req.Nonce)
	}
	for _, block := range res.Blocks {
		if block == nil || block.Header == nil || !block.HasBody() {
			return nil, fmt.Errorf("response from %s contains a block without header or body", peerID)
		}
	}
	return &res, nil
}

// MissingBlocksServer answers missing blocks requests from the local chain.
// Requests beyond the rate limit of the requesting peer are refused.
type MissingBlocksServer struct {
	log      zerolog.Logger
	state    pstate.State
	limit    rate.Limit
	burst    int
	limiters *lru.Cache[peer.ID, *rate.Limiter]
}

// ServerOption configures a MissingBlocksServer.
type ServerOption func(*MissingBlocksServer)

// WithRequestRateLimit sets the rate and burst of requests served per peer.
func WithRequestRateLimit(limit rate.Limit, burst int) ServerOption {
	return func(s *MissingBlocksServer) {
		s.limit = limit
		s.burst = burst
	}
}

func NewMissingBlocksServer(log zerolog.Logger, state pstate.State, opts ...ServerOption) *MissingBlocksServer {
	limiters, err := lru.New[peer.ID, *rate.Limiter](limiterCacheSize)
	if err != nil {
		panic(fmt.Sprintf("could not create limiter cache: %v", err))
	}
	s := &MissingBlocksServer{
		log:      log.With().Str("module", "missing_blocks_server").Logger(),
		state:    state,
		limit:    DefaultRequestRate,
		burst:    DefaultRequestBurst,
		limiters: limiters,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// allow reports whether the peer may be served another request now.
func (s *MissingBlocksServer) allow(peerID peer.ID) bool {
	if cached, ok := s.limiters.Get(peerID); ok {
		return cached.Allow()
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.limiters.Add(peerID, limiter)
	return limiter.Allow()
}

// Register serves the protocol on the host.
func (s *MissingBlocksServer) Register(h host.Host) {
	h.SetStreamHandler(MissingBlocksProtocol, s.handleStream)
}

// Unregister stops serving the protocol on the host.
func (s *MissingBlocksServer) Unregister(h host.Host) {
	h.RemoveStreamHandler(MissingBlocksProtocol)
}

func (s *MissingBlocksServer) handleStream(stream libp2pnet.Stream) {
	defer stream.Close()
	remote := stream.Conn().RemotePeer()
	log := s.log.With().Str("peer", remote.String()).Logger()
	if !s.allow(remote) {
		log.Debug().Msg("missing blocks request rate exceeded, refusing")
		_ = stream.Reset()
		return
	}
	_ = stream.SetDeadline(time.Now().Add(DefaultStreamTimeout))

	var req messages.MissingBlocksRequest
	err := msgpack.NewDecoder(io.LimitReader(stream, maxMessageSize)).Decode(&req)
	if err != nil {
		log.Warn().Err(err).Msg("could not decode missing blocks request")
		_ = stream.Reset()
		return
	}

	res, err := s.MissingBlocks(&req)
	if err != nil {
		log.Error().Err(err).Msg("could not collect missing blocks")
		_ = stream.Reset()
		return
	}
	err = msgpack.NewEncoder(stream).Encode(res)
	if err != nil {
		log.Warn().Err(err).Msg("could not send missing blocks response")
		_ = stream.Reset()
		return
	}
	log.Debug().Int("blocks", len(res.Blocks)).Msg("served missing blocks")
}

// MissingBlocks collects the blocks following the newest known locator up to
// the target, parent-first. A zero target stands for the local head. The
// response is empty if the target or all locators are unknown.
func (s *MissingBlocksServer) MissingBlocks(req *messages.MissingBlocksRequest) (*messages.MissingBlocksResponse, error) {
	res := &messages.MissingBlocksResponse{Nonce: req.Nonce}

	targetID := req.TargetID
	if targetID == flow.ZeroID {
		targetID = s.state.HeadID()
	}
	target, err := s.state.ChainInfo(targetID, false)
	if errors.Is(err, storage.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not retrieve target %x: %w", targetID, err)
	}

	if target.OnMainChain {
		res.Blocks, err = s.forward(req.Locators, target)
	} else {
		res.Blocks, err = s.backward(req.Locators, target)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// forward walks the main chain upwards from the newest locator on it.
func (s *MissingBlocksServer) forward(locators []flow.Identifier, target *flow.ChainInfo) ([]*flow.Block, error) {
	var start *flow.ChainInfo
	for _, locatorID := range locators {
		info, err := s.state.ChainInfo(locatorID, false)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not retrieve locator %x: %w", locatorID, err)
		}
		if info.OnMainChain {
			start = info
			break
		}
	}
	if start == nil || start.Head.Number() >= target.Head.Number() {
		return nil, nil
	}

	targetID := target.Head.ID()
	var blocks []*flow.Block
	nextID := start.MainChainSuccessor
	for nextID != flow.ZeroID && len(blocks) < messages.MaxMissingBlocks {
		info, err := s.state.ChainInfo(nextID, true)
		if err != nil {
			return nil, fmt.Errorf("could not retrieve main chain block %x: %w", nextID, err)
		}
		blocks = append(blocks, info.Head)
		if nextID == targetID {
			break
		}
		nextID = info.MainChainSuccessor
	}
	return blocks, nil
}

// backward walks a fork down from the target until it reaches a locator.
func (s *MissingBlocksServer) backward(locators []flow.Identifier, target *flow.ChainInfo) ([]*flow.Block, error) {
	known := flow.IdentifierList(locators).Lookup()
	targetID := target.Head.ID()
	info, err := s.state.ChainInfo(targetID, true)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve target %x: %w", targetID, err)
	}

	blocks := []*flow.Block{info.Head}
	for len(blocks) <= 2*messages.MaxMissingBlocks {
		parentID := info.Head.ParentID()
		if _, ok := known[parentID]; ok {
			// reverse to parent-first and keep the blocks closest to the locator
			for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
				blocks[i], blocks[j] = blocks[j], blocks[i]
			}
			if len(blocks) > messages.MaxMissingBlocks {
				blocks = blocks[:messages.MaxMissingBlocks]
			}
			return blocks, nil
		}
		if parentID == flow.ZeroID {
			return nil, nil
		}
		info, err = s.state.ChainInfo(parentID, true)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("could not retrieve fork block %x: %w", parentID, err)
		}
		blocks = append(blocks, info.Head)
	}
	return nil, nil
}
