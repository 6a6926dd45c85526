package unittest

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/onflow/pos-sync/model/flow"
)

// GenesisTime is the timestamp of fixture genesis blocks. It lies far enough in
// the past for long fixture chains to stay behind the local clock.
var GenesisTime = uint64(time.Now().Add(-24 * time.Hour).UnixMilli())

func IdentifierFixture() flow.Identifier {
	var id flow.Identifier
	_, _ = rand.Read(id[:])
	return id
}

func IdentifierListFixture(n int) flow.IdentifierList {
	list := make(flow.IdentifierList, n)
	for i := range list {
		list[i] = IdentifierFixture()
	}
	return list
}

func randomUint64() uint64 {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(^uint64(0)))
	if err != nil {
		panic(err)
	}
	return n.Uint64()
}

func TransactionFixture() *flow.Transaction {
	return &flow.Transaction{
		Sender:    IdentifierFixture(),
		Recipient: IdentifierFixture(),
		Value:     randomUint64() % 1000,
		Nonce:     randomUint64(),
	}
}

func PayloadFixture(transactions int) *flow.Payload {
	payload := &flow.Payload{Transactions: make([]*flow.Transaction, 0, transactions)}
	for i := 0; i < transactions; i++ {
		payload.Transactions = append(payload.Transactions, TransactionFixture())
	}
	return payload
}

// BlockFixture returns an unsigned micro block with random content.
func BlockFixture() *flow.Block {
	return flow.NewBlock(flow.Header{
		Type:      flow.BlockTypeMicro,
		Number:    uint32(randomUint64()%1000) + 1,
		ParentID:  IdentifierFixture(),
		Timestamp: GenesisTime,
	}, PayloadFixture(2))
}

// GenesisFixture returns the genesis macro block of fixture chains.
func GenesisFixture() *flow.Block {
	return flow.NewBlock(flow.Header{
		Type:      flow.BlockTypeMacro,
		Number:    0,
		ParentID:  flow.ZeroID,
		Timestamp: GenesisTime,
	}, nil)
}

func ValidatorListFixture(n int) []*flow.Validator {
	validators := make([]*flow.Validator, 0, n)
	for i := 0; i < n; i++ {
		validators = append(validators, &flow.Validator{
			NodeID:    IdentifierFixture(),
			PublicKey: append([]byte{0x02}, IdentifierFixture().String()[:32]...),
		})
	}
	return validators
}
