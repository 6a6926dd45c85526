package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/storage"
	"github.com/onflow/pos-sync/storage/badger/operation"
	"github.com/onflow/pos-sync/storage/badger/transaction"
)

// Ledger implements storage.Ledger on badger. It records which main chain block
// applied each transaction, which rejects replays within the main chain.
type Ledger struct {
	db *badger.DB
}

var _ storage.Ledger = (*Ledger)(nil)

func NewLedger(db *badger.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) ApplyTx(block *flow.Block) func(*transaction.Tx) error {
	return func(tx *transaction.Tx) error {
		if !block.HasBody() {
			return fmt.Errorf("cannot apply block %x without body", block.ID())
		}
		blockID := block.ID()
		for _, txn := range block.Payload.Transactions {
			txID := txn.ID()
			err := operation.IndexTransactionBlock(txID, blockID)(tx.DBTxn)
			if errors.Is(err, storage.ErrAlreadyExists) {
				return fmt.Errorf("transaction %x already applied: %w", txID, err)
			}
			if err != nil {
				return fmt.Errorf("could not index transaction %x: %w", txID, err)
			}
		}
		return nil
	}
}

func (l *Ledger) RevertTx(block *flow.Block) func(*transaction.Tx) error {
	return func(tx *transaction.Tx) error {
		if !block.HasBody() {
			return irrecoverable.NewExceptionf("cannot revert block %x without body", block.ID())
		}
		blockID := block.ID()
		// revert in reverse application order
		txs := block.Payload.Transactions
		for i := len(txs) - 1; i >= 0; i-- {
			txID := txs[i].ID()
			var applyingID flow.Identifier
			err := operation.LookupTransactionBlock(txID, &applyingID)(tx.DBTxn)
			if err != nil {
				return irrecoverable.NewExceptionf("could not look up applied transaction %x: %w", txID, err)
			}
			if applyingID != blockID {
				return irrecoverable.NewExceptionf("transaction %x was applied by %x, not by reverted block %x", txID, applyingID, blockID)
			}
			err = operation.RemoveTransactionBlock(txID)(tx.DBTxn)
			if err != nil {
				return fmt.Errorf("could not remove transaction %x: %w", txID, err)
			}
		}
		return nil
	}
}

func (l *Ledger) TransactionBlock(txID flow.Identifier) (flow.Identifier, error) {
	var blockID flow.Identifier
	err := l.db.View(operation.LookupTransactionBlock(txID, &blockID))
	return blockID, err
}
