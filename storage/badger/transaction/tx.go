package transaction

import (
	"errors"
	"syscall"

	dbbadger "github.com/dgraph-io/badger/v2"
)

// Tx wraps a badger transaction and collects callbacks which run only after
// the transaction committed successfully.
type Tx struct {
	DBTxn     *dbbadger.Txn
	callbacks []func()
}

// OnSucceed adds a callback to execute after the transaction committed.
func (b *Tx) OnSucceed(callback func()) {
	b.callbacks = append(b.callbacks, callback)
}

// Update creates a read-write transaction, runs f and commits if f returned
// no error. Callbacks run in registration order after the commit.
func Update(db *dbbadger.DB, f func(*Tx) error) error {
	dbTxn := db.NewTransaction(true)
	defer dbTxn.Discard()

	tx := &Tx{DBTxn: dbTxn}
	err := f(tx)
	if err != nil {
		return err
	}

	err = dbTxn.Commit()
	if err != nil {
		return terminateOnFullDisk(err)
	}

	for _, callback := range tx.callbacks {
		callback()
	}
	return nil
}

// View creates a read-only transaction and runs f on it. Callbacks run after f
// returned without error.
func View(db *dbbadger.DB, f func(*Tx) error) error {
	dbTxn := db.NewTransaction(false)
	defer dbTxn.Discard()

	tx := &Tx{DBTxn: dbTxn}
	err := f(tx)
	if err != nil {
		return err
	}
	for _, callback := range tx.callbacks {
		callback()
	}
	return nil
}

// WithTx adapts a badger functor to a Tx functor.
func WithTx(f func(*dbbadger.Txn) error) func(*Tx) error {
	return func(tx *Tx) error {
		return f(tx.DBTxn)
	}
}

// terminateOnFullDisk crashes the node if a write failed because the disk is full.
func terminateOnFullDisk(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		panic("disk full, terminating node...")
	}
	return err
}
