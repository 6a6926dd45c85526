package badger_test

import (
	"os"
	"testing"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/module/metrics"
	modulemock "github.com/onflow/pos-sync/module/mock"
	"github.com/onflow/pos-sync/module/signature"
	"github.com/onflow/pos-sync/state"
	"github.com/onflow/pos-sync/state/protocol"
	bprotocol "github.com/onflow/pos-sync/state/protocol/badger"
	protocolmock "github.com/onflow/pos-sync/state/protocol/mock"
	"github.com/onflow/pos-sync/storage"
	bstorage "github.com/onflow/pos-sync/storage/badger"
	"github.com/onflow/pos-sync/utils/unittest"
)

type MutatorSuite struct {
	suite.Suite

	dir      string
	db       *badger.DB
	builder  *unittest.ChainBuilder
	genesis  *flow.Block
	chain    *bstorage.ChainStore
	ledger   *bstorage.Ledger
	root     *bprotocol.State
	consumer *protocolmock.Consumer
	state    *bprotocol.MutableState
}

func TestMutator(t *testing.T) {
	suite.Run(t, new(MutatorSuite))
}

func (s *MutatorSuite) SetupTest() {
	s.dir = unittest.TempDir(s.T())
	s.db = unittest.BadgerDB(s.T(), s.dir)
	s.builder = unittest.NewChainBuilder(s.T(), 4)
	s.genesis = s.builder.Genesis
	s.chain = bstorage.NewChainStore(s.db, 100)
	s.ledger = bstorage.NewLedger(s.db)

	var err error
	s.root, err = bprotocol.Bootstrap(s.db, s.chain, s.ledger, s.genesis)
	s.Require().NoError(err)

	s.consumer = protocolmock.NewConsumer(s.T())
	s.state = bprotocol.NewMutableState(
		unittest.Logger(),
		s.root,
		s.builder.Committee,
		signature.NewVerifier(),
		s.consumer,
		metrics.NewNoopCollector(),
	)
}

func (s *MutatorSuite) TearDownTest() {
	s.Require().NoError(s.db.Close())
	s.Require().NoError(os.RemoveAll(s.dir))
}

// blocksMatch matches a block slice by the IDs of the expected blocks.
func blocksMatch(expected ...*flow.Block) interface{} {
	expectedIDs := flow.BlockIDs(expected)
	return mock.MatchedBy(func(blocks []*flow.Block) bool {
		if len(blocks) != len(expectedIDs) {
			return false
		}
		for i, block := range blocks {
			if block.ID() != expectedIDs[i] {
				return false
			}
		}
		return true
	})
}

func blockMatch(expected *flow.Block) interface{} {
	expectedID := expected.ID()
	return mock.MatchedBy(func(block *flow.Block) bool {
		return block.ID() == expectedID
	})
}

func (s *MutatorSuite) push(block *flow.Block, expected protocol.PushResult) {
	result, err := s.state.Push(block)
	s.Require().NoError(err)
	s.Require().Equal(expected, result, "unexpected result for block %d", block.Number())
}

func (s *MutatorSuite) extend(blocks ...*flow.Block) {
	for _, block := range blocks {
		s.consumer.On("BlockExtended", blockMatch(block)).Once()
		if block.IsMacro() {
			s.consumer.On("BlockFinalized", blockMatch(block)).Once()
		}
		s.push(block, protocol.PushResultExtended)
	}
}

func (s *MutatorSuite) rebranch(tip *flow.Block, reverted []*flow.Block, adopted []*flow.Block) {
	s.consumer.On("Rebranched", blocksMatch(reverted...), blocksMatch(adopted...)).Once()
	s.push(tip, protocol.PushResultRebranched)
}

func (s *MutatorSuite) info(block *flow.Block) *flow.ChainInfo {
	info, err := s.chain.ChainInfo(block.ID(), false)
	s.Require().NoError(err)
	return info
}

func (s *MutatorSuite) requireUnknown(block *flow.Block) {
	_, err := s.chain.ChainInfo(block.ID(), false)
	s.Require().ErrorIs(err, storage.ErrNotFound)
}

func (s *MutatorSuite) requireHead(block *flow.Block) {
	s.Require().Equal(block.ID(), s.state.HeadID())
	headID, err := s.chain.Head()
	s.Require().NoError(err)
	s.Require().Equal(block.ID(), headID)
}

func (s *MutatorSuite) requireApplied(block *flow.Block) {
	for _, txID := range block.Payload.TransactionIDs() {
		applyingID, err := s.ledger.TransactionBlock(txID)
		s.Require().NoError(err)
		s.Require().Equal(block.ID(), applyingID)
	}
}

func (s *MutatorSuite) requireNotApplied(block *flow.Block) {
	for _, txID := range block.Payload.TransactionIDs() {
		_, err := s.ledger.TransactionBlock(txID)
		s.Require().ErrorIs(err, storage.ErrNotFound)
	}
}

func (s *MutatorSuite) TestExtend() {
	block := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture(), unittest.TransactionFixture())
	s.extend(block)

	s.requireHead(block)
	s.Require().Equal(block.ID(), s.info(s.genesis).MainChainSuccessor)
	info := s.info(block)
	s.Require().True(info.OnMainChain)
	s.Require().False(info.HasSuccessor())
	s.requireApplied(block)

	withBody, err := s.chain.ChainInfo(block.ID(), true)
	s.Require().NoError(err)
	s.Require().Equal(block.Payload.Hash(), withBody.Head.Payload.Hash())
	s.Require().Equal(block.Justification, withBody.Head.Justification)
}

func (s *MutatorSuite) TestKnownBlock() {
	block := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	s.extend(block)

	// a second push neither writes nor notifies
	s.push(block, protocol.PushResultKnown)
	s.push(s.genesis, protocol.PushResultKnown)
	s.requireHead(block)
}

func (s *MutatorSuite) TestOrphan() {
	parent := s.builder.Extend(s.genesis, 0)
	block := s.builder.Extend(parent, 0)

	_, err := s.state.Push(block)
	s.Require().True(state.IsOrphanBlockError(err))
	s.Require().False(state.IsInvalidBlockError(err))
	s.requireUnknown(block)
	s.requireHead(s.genesis)
}

func (s *MutatorSuite) TestInferiorBlockIgnored() {
	main := s.builder.Extend(s.genesis, 1)
	s.extend(main)

	competitor := s.builder.Extend(s.genesis, 0)
	s.push(competitor, protocol.PushResultIgnored)
	s.requireUnknown(competitor)
	s.requireHead(main)
}

func (s *MutatorSuite) TestMacroBlockFinalized() {
	blocks := s.builder.Chain(s.genesis, int(flow.BatchLength), 0)
	s.extend(blocks...)

	tip := blocks[len(blocks)-1]
	s.Require().True(tip.IsMacro())
	s.requireHead(tip)
	s.Require().Equal(tip.ID(), s.state.MacroHead().ID())
	macroID, err := s.chain.MacroHead()
	s.Require().NoError(err)
	s.Require().Equal(tip.ID(), macroID)

	locators, err := s.state.BlockLocators()
	s.Require().NoError(err)
	s.Require().Equal([]flow.Identifier{tip.ID()}, locators)
}

func (s *MutatorSuite) TestBlockLocators() {
	blocks := s.builder.Chain(s.genesis, 3, 0)
	s.extend(blocks...)

	locators, err := s.state.BlockLocators()
	s.Require().NoError(err)
	s.Require().Equal([]flow.Identifier{blocks[2].ID(), blocks[1].ID(), blocks[0].ID(), s.genesis.ID()}, locators)
}

func (s *MutatorSuite) TestInvalidHeader() {
	s.Run("payload does not match payload hash", func() {
		block := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
		block.Payload = unittest.PayloadFixture(1)

		_, err := s.state.Push(block)
		s.Require().True(state.IsInvalidHeaderError(err))
		s.requireUnknown(block)
	})

	s.Run("block without body", func() {
		block := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture()).WithoutBody()

		_, err := s.state.Push(block)
		s.Require().True(state.IsInvalidHeaderError(err))
		s.requireUnknown(block)
	})

	s.Run("wrong block type", func() {
		block := s.builder.Extend(s.genesis, 0)
		block.Header.Type = flow.BlockTypeMacro
		block = s.builder.Resign(block)

		_, err := s.state.Push(block)
		s.Require().True(state.IsInvalidHeaderError(err))
		s.requireUnknown(block)
	})

	s.Run("timestamp too far in the future", func() {
		block := s.builder.Extend(s.genesis, 0)
		block.Header.Timestamp = unittest.GenesisTime + uint64(48*60*60*1000)
		block = s.builder.Resign(block)

		_, err := s.state.Push(block)
		s.Require().True(state.IsInvalidHeaderError(err))
		s.requireUnknown(block)
	})

	s.requireHead(s.genesis)
}

func (s *MutatorSuite) TestInvalidJustification() {
	block := s.builder.Extend(s.genesis, 0)
	other := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	forged := block.WithJustification(other.Justification)

	_, err := s.state.Push(forged)
	s.Require().True(state.IsInvalidJustificationError(err))
	s.Require().True(state.IsInvalidBlockError(err))
	s.requireUnknown(block)

	_, err = s.state.Push(block.WithJustification(nil))
	s.Require().True(state.IsInvalidJustificationError(err))
	s.requireHead(s.genesis)
}

func (s *MutatorSuite) TestInvalidSuccessor() {
	block := s.builder.Extend(s.genesis, 0)
	block.Header.Timestamp = s.genesis.Header.Timestamp - 1
	block = s.builder.Resign(block)

	_, err := s.state.Push(block)
	s.Require().True(state.IsInvalidSuccessorError(err))
	s.requireUnknown(block)
}

func (s *MutatorSuite) TestMissingSlotOwner() {
	selector := modulemock.NewValidatorSelector(s.T())
	selector.On("SlotOwnerAt", uint32(1), uint32(0)).Return(nil, uint16(0), false)
	mutator := bprotocol.NewMutableState(unittest.Logger(), s.root, selector, signature.NewVerifier(), s.consumer, metrics.NewNoopCollector())

	block := s.builder.Extend(s.genesis, 0)
	_, err := mutator.Push(block)
	s.Require().True(irrecoverable.IsException(err))
	s.requireUnknown(block)
}

func (s *MutatorSuite) TestDuplicateTransactionOnExtend() {
	tx := unittest.TransactionFixture()
	first := s.builder.Extend(s.genesis, 0, tx)
	s.extend(first)

	replay := s.builder.Extend(first, 0, tx)
	_, err := s.state.Push(replay)
	s.Require().True(state.IsDuplicateTransactionError(err))
	s.requireUnknown(replay)
	s.requireHead(first)
	s.requireApplied(first)
}

func (s *MutatorSuite) TestRebranch() {
	main := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	s.extend(main)

	fork := s.builder.Extend(s.genesis, 1, unittest.TransactionFixture())
	s.rebranch(fork, []*flow.Block{main}, []*flow.Block{fork})

	s.requireHead(fork)
	s.Require().Equal(fork.ID(), s.info(s.genesis).MainChainSuccessor)
	s.Require().True(s.info(fork).OnMainChain)

	reverted := s.info(main)
	s.Require().False(reverted.OnMainChain)
	s.Require().False(reverted.HasSuccessor())
	s.requireNotApplied(main)
	s.requireApplied(fork)

	// the reverted block is still known and can be extended as a fork
	s.push(main, protocol.PushResultKnown)
}

func (s *MutatorSuite) TestRebranchToLongerFork() {
	a1 := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	s.extend(a1)
	b1 := s.builder.Extend(s.genesis, 1, unittest.TransactionFixture())
	s.rebranch(b1, []*flow.Block{a1}, []*flow.Block{b1})

	// a1 is stored off the main chain; its child outgrows the main chain
	a2 := s.builder.Extend(a1, 0, unittest.TransactionFixture())
	s.rebranch(a2, []*flow.Block{b1}, []*flow.Block{a1, a2})

	s.requireHead(a2)
	s.Require().Equal(a1.ID(), s.info(s.genesis).MainChainSuccessor)
	s.Require().Equal(a2.ID(), s.info(a1).MainChainSuccessor)
	s.Require().False(s.info(b1).OnMainChain)
	s.requireApplied(a1)
	s.requireApplied(a2)
	s.requireNotApplied(b1)
}

func (s *MutatorSuite) TestForkStored() {
	a1 := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	s.extend(a1)
	b1 := s.builder.Extend(s.genesis, 1, unittest.TransactionFixture())
	s.rebranch(b1, []*flow.Block{a1}, []*flow.Block{b1})
	main := s.builder.Chain(b1, 2, 0)
	s.extend(main...)

	// a fork of a fork below the head stays undecided
	a2 := s.builder.Extend(a1, 0, unittest.TransactionFixture())
	s.push(a2, protocol.PushResultForked)
	s.Require().False(s.info(a2).OnMainChain)
	s.requireNotApplied(a2)
	s.requireHead(main[1])

	ids, err := s.chain.BlockIDsAt(2)
	s.Require().NoError(err)
	s.Require().ElementsMatch([]flow.Identifier{main[0].ID(), a2.ID()}, ids)

	// at equal height the lower first view loses
	a3 := s.builder.Extend(a2, 0)
	s.push(a3, protocol.PushResultIgnored)
	s.requireUnknown(a3)
}

func (s *MutatorSuite) TestRebranchFailure() {
	a1 := s.builder.Extend(s.genesis, 0, unittest.TransactionFixture())
	s.extend(a1)
	b1 := s.builder.Extend(s.genesis, 1, unittest.TransactionFixture())
	s.rebranch(b1, []*flow.Block{a1}, []*flow.Block{b1})
	a2 := s.builder.Extend(a1, 0, unittest.TransactionFixture())
	s.rebranch(a2, []*flow.Block{b1}, []*flow.Block{a1, a2})
	a3 := s.builder.Extend(a2, 0, unittest.TransactionFixture())
	s.extend(a3)

	// b2 replays its own transaction and can only be detected when applied
	tx := unittest.TransactionFixture()
	b2 := s.builder.Extend(b1, 0, tx, tx)
	s.push(b2, protocol.PushResultForked)
	b3 := s.builder.Extend(b2, 0, unittest.TransactionFixture())

	s.consumer.On("Rebranched", blocksMatch(a1, a2, a3), blocksMatch()).Once()
	_, err := s.state.Push(b3)
	s.Require().True(state.IsInvalidForkError(err))
	s.Require().True(state.IsDuplicateTransactionError(err))

	// the chain is left at the common ancestor
	s.requireHead(s.genesis)
	s.Require().False(s.info(s.genesis).HasSuccessor())
	for _, block := range []*flow.Block{a1, a2, a3, b1} {
		s.Require().False(s.info(block).OnMainChain)
		s.requireNotApplied(block)
	}

	// the failed block and its descendants are gone
	s.requireUnknown(b2)
	s.requireUnknown(b3)

	reopened, err := bprotocol.OpenState(s.db, bstorage.NewChainStore(s.db, 0), bstorage.NewLedger(s.db))
	s.Require().NoError(err)
	s.Require().Equal(s.genesis.ID(), reopened.HeadID())
}

func (s *MutatorSuite) TestMacroForkIgnored() {
	blocks := s.builder.Chain(s.genesis, int(flow.BatchLength), 0)
	s.extend(blocks...)
	macro := blocks[len(blocks)-1]

	// forks below the last macro block are never adopted
	fork := s.builder.Extend(blocks[len(blocks)-2], 1)
	s.push(fork, protocol.PushResultIgnored)
	s.requireUnknown(fork)
	s.requireHead(macro)
}

func TestBootstrap(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		chain := bstorage.NewChainStore(db, 0)
		ledger := bstorage.NewLedger(db)

		bootstrapped, err := bprotocol.IsBootstrapped(db)
		require.NoError(t, err)
		require.False(t, bootstrapped)

		_, err = bprotocol.OpenState(db, chain, ledger)
		require.Error(t, err)

		micro := unittest.BlockFixture()
		_, err = bprotocol.Bootstrap(db, chain, ledger, micro)
		require.Error(t, err)

		genesis := unittest.GenesisFixture()
		s, err := bprotocol.Bootstrap(db, chain, ledger, genesis)
		require.NoError(t, err)
		require.Equal(t, genesis.ID(), s.HeadID())
		require.Equal(t, genesis.ID(), s.MacroHead().ID())

		_, err = bprotocol.Bootstrap(db, chain, ledger, genesis)
		require.Error(t, err)

		opened, err := bprotocol.OpenState(db, bstorage.NewChainStore(db, 0), ledger)
		require.NoError(t, err)
		require.Equal(t, genesis.ID(), opened.HeadID())
		require.Equal(t, genesis.ID(), opened.MacroHead().ID())

		info, err := opened.ChainInfo(genesis.ID(), true)
		require.NoError(t, err)
		require.True(t, info.OnMainChain)
	})
}

func TestOpenStateAfterExtension(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		builder := unittest.NewChainBuilder(t, 3)
		chain := bstorage.NewChainStore(db, 0)
		ledger := bstorage.NewLedger(db)
		root, err := bprotocol.Bootstrap(db, chain, ledger, builder.Genesis)
		require.NoError(t, err)

		consumer := protocolmock.NewConsumer(t)
		consumer.On("BlockExtended", mock.Anything)
		consumer.On("BlockFinalized", mock.Anything).Once()
		mutator := bprotocol.NewMutableState(unittest.Logger(), root, builder.Committee, signature.NewVerifier(), consumer, metrics.NewNoopCollector())

		blocks := builder.Chain(builder.Genesis, int(flow.BatchLength)+2, 0)
		for _, block := range blocks {
			result, err := mutator.Push(block)
			require.NoError(t, err)
			require.Equal(t, protocol.PushResultExtended, result)
		}

		opened, err := bprotocol.OpenState(db, bstorage.NewChainStore(db, 0), ledger)
		require.NoError(t, err)
		require.Equal(t, blocks[len(blocks)-1].ID(), opened.HeadID())
		require.Equal(t, blocks[flow.BatchLength-1].ID(), opened.MacroHead().ID())

		backward, err := opened.BlocksBackward(opened.HeadID(), 3, false)
		require.NoError(t, err)
		require.Len(t, backward, 3)
		require.Equal(t, blocks[len(blocks)-2].ID(), backward[0].ID())
		require.False(t, backward[0].HasBody())
	})
}
