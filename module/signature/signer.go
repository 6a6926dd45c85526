package signature

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/onflow/pos-sync/model/flow"
)

// Signer produces block justifications with a secp256k1 key.
type Signer struct {
	key *secp256k1.PrivateKey
}

// NewSigner creates a signer from a 32-byte private key.
func NewSigner(privateKey []byte) (*Signer, error) {
	if len(privateKey) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid private key length %d", len(privateKey))
	}
	return &Signer{key: secp256k1.PrivKeyFromBytes(privateKey)}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// PublicKey returns the compressed public key.
func (s *Signer) PublicKey() []byte {
	return s.key.PubKey().SerializeCompressed()
}

// PrivateKey returns the serialized private key.
func (s *Signer) PrivateKey() []byte {
	return s.key.Serialize()
}

// Sign returns the justification for the header, a DER encoded signature over
// the block ID.
func (s *Signer) Sign(header *flow.Header) []byte {
	id := header.ID()
	return ecdsa.Sign(s.key, id[:]).Serialize()
}

// SignBlock returns a copy of the block carrying the justification.
func (s *Signer) SignBlock(block *flow.Block) *flow.Block {
	return block.WithJustification(s.Sign(block.Header))
}
