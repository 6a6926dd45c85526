package operation

import (
	"errors"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/onflow/pos-sync/module/irrecoverable"
)

var errUncompressedValue = errors.New("could not uncompress data")

// encodeEntity encodes the entity with msgpack and compresses it with snappy.
// An encoding failure is an exception.
func encodeEntity(entity interface{}) ([]byte, error) {
	val, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, irrecoverable.NewExceptionf("could not encode entity: %w", err)
	}
	return snappy.Encode(nil, val), nil
}

// decodeValue reverses encodeEntity. A decoding failure is an exception.
func decodeValue(val []byte, entity interface{}) error {
	uncompressed, err := snappy.Decode(nil, val)
	if err != nil {
		return irrecoverable.NewExceptionf("%s: %w", err, errUncompressedValue)
	}
	err = msgpack.Unmarshal(uncompressed, entity)
	if err != nil {
		return irrecoverable.NewExceptionf("could not decode entity: %w", err)
	}
	return nil
}

func isErrUncompressedValue(err error) bool {
	return errors.Is(err, errUncompressedValue)
}

// mustDecodeKey is used where a malformed key means the database is corrupted.
func mustDecodeKey(key []byte, expected int) error {
	if len(key) != expected {
		return irrecoverable.NewExceptionf("unexpected key length (expected: %d, got: %d)", expected, len(key))
	}
	return nil
}
