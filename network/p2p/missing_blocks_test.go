package p2p_test

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/model/messages"
	"github.com/onflow/pos-sync/module/metrics"
	"github.com/onflow/pos-sync/module/signature"
	"github.com/onflow/pos-sync/network/p2p"
	"github.com/onflow/pos-sync/state/protocol"
	bprotocol "github.com/onflow/pos-sync/state/protocol/badger"
	"github.com/onflow/pos-sync/state/protocol/events"
	bstorage "github.com/onflow/pos-sync/storage/badger"
	"github.com/onflow/pos-sync/utils/unittest"
)

func chainState(t *testing.T, db *badger.DB, builder *unittest.ChainBuilder) *bprotocol.MutableState {
	chain := bstorage.NewChainStore(db, 0)
	ledger := bstorage.NewLedger(db)
	root, err := bprotocol.Bootstrap(db, chain, ledger, builder.Genesis)
	require.NoError(t, err)
	return bprotocol.NewMutableState(unittest.Logger(), root, builder.Committee, signature.NewVerifier(), events.NewNoop(), metrics.NewNoopCollector())
}

func push(t *testing.T, state *bprotocol.MutableState, expected protocol.PushResult, blocks ...*flow.Block) {
	for _, block := range blocks {
		result, err := state.Push(block)
		require.NoError(t, err)
		require.Equal(t, expected, result)
	}
}

func blockIDs(blocks []*flow.Block) flow.IdentifierList {
	return flow.BlockIDs(blocks)
}

func TestMissingBlocks_MainChain(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 4)
		state := chainState(t, db, builder)
		blocks := builder.Chain(builder.Genesis, 5, 0)
		push(t, state, protocol.PushResultExtended, blocks...)
		server := p2p.NewMissingBlocksServer(unittest.Logger(), state)

		t.Run("from newest known locator up to the target", func(t *testing.T) {
			res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
				Nonce:    7,
				TargetID: blocks[3].ID(),
				Locators: []flow.Identifier{unittest.IdentifierFixture(), blocks[1].ID(), builder.Genesis.ID()},
			})
			require.NoError(t, err)
			assert.Equal(t, uint64(7), res.Nonce)
			assert.Equal(t, blockIDs(blocks[2:4]), blockIDs(res.Blocks))
			for _, block := range res.Blocks {
				assert.True(t, block.HasBody())
			}
		})

		t.Run("zero target stands for the head", func(t *testing.T) {
			res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
				Locators: []flow.Identifier{builder.Genesis.ID()},
			})
			require.NoError(t, err)
			assert.Equal(t, blockIDs(blocks), blockIDs(res.Blocks))
		})

		t.Run("unknown locators", func(t *testing.T) {
			res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
				TargetID: blocks[4].ID(),
				Locators: unittest.IdentifierListFixture(3),
			})
			require.NoError(t, err)
			assert.Empty(t, res.Blocks)
		})

		t.Run("unknown target", func(t *testing.T) {
			res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
				TargetID: unittest.IdentifierFixture(),
				Locators: []flow.Identifier{builder.Genesis.ID()},
			})
			require.NoError(t, err)
			assert.Empty(t, res.Blocks)
		})

		t.Run("locator above the target", func(t *testing.T) {
			res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
				TargetID: blocks[1].ID(),
				Locators: []flow.Identifier{blocks[3].ID()},
			})
			require.NoError(t, err)
			assert.Empty(t, res.Blocks)
		})
	})
}

func TestMissingBlocks_Bounded(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 4)
		state := chainState(t, db, builder)
		blocks := builder.Chain(builder.Genesis, messages.MaxMissingBlocks+5, 0)
		for _, block := range blocks {
			_, err := state.Push(block)
			require.NoError(t, err)
		}
		server := p2p.NewMissingBlocksServer(unittest.Logger(), state)

		res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
			Locators: []flow.Identifier{builder.Genesis.ID()},
		})
		require.NoError(t, err)
		assert.Equal(t, blockIDs(blocks[:messages.MaxMissingBlocks]), blockIDs(res.Blocks))
	})
}

func TestMissingBlocks_Fork(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 4)
		state := chainState(t, db, builder)

		a1 := builder.Extend(builder.Genesis, 0, unittest.TransactionFixture())
		push(t, state, protocol.PushResultExtended, a1)
		b1 := builder.Extend(builder.Genesis, 1, unittest.TransactionFixture())
		push(t, state, protocol.PushResultRebranched, b1)
		main := builder.Chain(b1, 2, 0)
		push(t, state, protocol.PushResultExtended, main...)
		a2 := builder.Extend(a1, 0, unittest.TransactionFixture())
		push(t, state, protocol.PushResultForked, a2)

		server := p2p.NewMissingBlocksServer(unittest.Logger(), state)
		locators, err := state.BlockLocators()
		require.NoError(t, err)

		res, err := server.MissingBlocks(&messages.MissingBlocksRequest{
			TargetID: a2.ID(),
			Locators: locators,
		})
		require.NoError(t, err)
		assert.Equal(t, blockIDs([]*flow.Block{a1, a2}), blockIDs(res.Blocks))
	})
}

func TestMissingBlocksClient(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 4)
		state := chainState(t, db, builder)
		blocks := builder.Chain(builder.Genesis, 3, 0)
		push(t, state, protocol.PushResultExtended, blocks...)

		mn, err := mocknet.FullMeshConnected(2)
		require.NoError(t, err)
		defer mn.Close()
		hosts := mn.Hosts()

		server := p2p.NewMissingBlocksServer(unittest.Logger(), state)
		server.Register(hosts[1])
		client := p2p.NewMissingBlocksClient(hosts[0], 5*time.Second)

		req := &messages.MissingBlocksRequest{
			Nonce:    42,
			TargetID: blocks[2].ID(),
			Locators: []flow.Identifier{builder.Genesis.ID()},
		}
		res, err := client.FetchMissingBlocks(context.Background(), hosts[1].ID(), req)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), res.Nonce)
		require.Equal(t, blockIDs(blocks), blockIDs(res.Blocks))
		assert.Equal(t, blocks[0].Justification, res.Blocks[0].Justification)
		assert.Equal(t, blocks[0].Payload.TransactionIDs(), res.Blocks[0].Payload.TransactionIDs())

		// a peer without the protocol fails the request
		server.Unregister(hosts[1])
		_, err = client.FetchMissingBlocks(context.Background(), hosts[1].ID(), req)
		assert.Error(t, err)
	})
}

func TestMissingBlocksServer_RateLimit(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 4)
		state := chainState(t, db, builder)

		mn, err := mocknet.FullMeshConnected(2)
		require.NoError(t, err)
		defer mn.Close()
		hosts := mn.Hosts()

		server := p2p.NewMissingBlocksServer(unittest.Logger(), state, p2p.WithRequestRateLimit(rate.Every(time.Hour), 1))
		server.Register(hosts[1])
		client := p2p.NewMissingBlocksClient(hosts[0], 5*time.Second)

		req := &messages.MissingBlocksRequest{Locators: []flow.Identifier{builder.Genesis.ID()}}
		_, err = client.FetchMissingBlocks(context.Background(), hosts[1].ID(), req)
		require.NoError(t, err)

		// the burst is used up
		_, err = client.FetchMissingBlocks(context.Background(), hosts[1].ID(), req)
		assert.Error(t, err)
	})
}
