package flow

import (
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
	"golang.org/x/crypto/sha3"
)

// Identifier represents a 32-byte unique identifier for an entity.
type Identifier [32]byte

// ZeroID is the lowest value in the 32-byte ID space. It marks the absence of a
// block, e.g. the parent of the genesis block or a missing main chain successor.
var ZeroID = Identifier{}

// HexStringToIdentifier converts a hex string to an identifier. The input must
// be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var identifier Identifier
	i, err := hex.Decode(identifier[:], []byte(hexString))
	if err != nil {
		return identifier, err
	}
	if i != 32 {
		return identifier, fmt.Errorf("malformed input, expected 32 bytes (64 characters), decoded %d", i)
	}
	return identifier, nil
}

// String returns the hex string representation of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is ZeroID.
func (id Identifier) IsZero() bool {
	return id == ZeroID
}

// MarshalText returns the hex representation of the identifier.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a hex encoded identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	var err error
	*id, err = HexStringToIdentifier(string(text))
	return err
}

// MakeID creates an ID from the hash of the canonical encoding of the entity.
func MakeID(entity interface{}) Identifier {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		panic(fmt.Sprintf("could not encode entity for hashing: %v", err))
	}
	return HashToID(data)
}

// HashToID hashes raw bytes into an identifier.
func HashToID(data []byte) Identifier {
	return sha3.Sum256(data)
}

// IdentifierList is an ordered list of identifiers.
type IdentifierList []Identifier

// Contains returns true if the list contains the given identifier.
func (il IdentifierList) Contains(target Identifier) bool {
	for _, id := range il {
		if id == target {
			return true
		}
	}
	return false
}

// Lookup converts the list into a set.
func (il IdentifierList) Lookup() map[Identifier]struct{} {
	lookup := make(map[Identifier]struct{}, len(il))
	for _, id := range il {
		lookup[id] = struct{}{}
	}
	return lookup
}
