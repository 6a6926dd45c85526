package operation

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/module/irrecoverable"
	"github.com/onflow/pos-sync/storage"
)

// insert encodes the entity and stores it under the key. It fails with
// storage.ErrAlreadyExists if the key is present.
func insert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return irrecoverable.NewExceptionf("could not check key: %w", err)
		}

		val, err := encodeEntity(entity)
		if err != nil {
			return err
		}
		err = tx.Set(key, val)
		if err != nil {
			return irrecoverable.NewExceptionf("could not store data: %w", err)
		}
		return nil
	}
}

// upsert encodes the entity and stores it under the key, overwriting any
// existing value.
func upsert(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := encodeEntity(entity)
		if err != nil {
			return err
		}
		err = tx.Set(key, val)
		if err != nil {
			return irrecoverable.NewExceptionf("could not upsert data: %w", err)
		}
		return nil
	}
}

// retrieve loads the value under the key and decodes it into entity, which must
// be a pointer. It fails with storage.ErrNotFound if the key does not exist.
func retrieve(key []byte, entity interface{}) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return irrecoverable.NewExceptionf("could not load data: %w", err)
		}
		return item.Value(func(val []byte) error {
			return decodeValue(val, entity)
		})
	}
}

// exists sets keyExists to whether the key is present.
func exists(key []byte, keyExists *bool) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			*keyExists = false
			return nil
		}
		if err != nil {
			return irrecoverable.NewExceptionf("could not check existence: %w", err)
		}
		*keyExists = true
		return nil
	}
}

// remove deletes the key. Removing a missing key is a no-op.
func remove(key []byte) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		err := tx.Delete(key)
		if err != nil {
			return irrecoverable.NewExceptionf("could not delete key %x: %w", key, err)
		}
		return nil
	}
}

// traverseKeys calls handle for every key with the given prefix in ascending
// order. Values are not loaded.
func traverseKeys(prefix []byte, handle func(key []byte) error) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		if len(prefix) == 0 {
			return fmt.Errorf("prefix must not be empty")
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			err := handle(key)
			if err != nil {
				return err
			}
		}
		return nil
	}
}
