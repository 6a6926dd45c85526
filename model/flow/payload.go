package flow

// Transaction is a value transfer contained in a block payload.
type Transaction struct {
	Sender    Identifier
	Recipient Identifier
	Value     uint64
	Nonce     uint64
	Data      []byte
}

// ID returns the canonical ID of the transaction.
func (tx *Transaction) ID() Identifier {
	return MakeID(tx)
}

// Payload is the body of a block.
type Payload struct {
	Transactions []*Transaction
}

// Hash returns the hash of the payload. It commits to the ordered list of
// transaction IDs, so an absent and an empty payload hash identically.
func (p *Payload) Hash() Identifier {
	ids := p.TransactionIDs()
	if ids == nil {
		ids = IdentifierList{}
	}
	return MakeID(ids)
}

// TransactionIDs returns the IDs of all transactions in payload order.
func (p *Payload) TransactionIDs() IdentifierList {
	if p == nil {
		return nil
	}
	ids := make(IdentifierList, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		ids = append(ids, tx.ID())
	}
	return ids
}
