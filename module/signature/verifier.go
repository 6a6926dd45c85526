package signature

import (
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module"
)

var (
	// ErrInvalidHeader is returned for a structurally invalid header.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrInvalidSignature is returned if the justification does not verify.
	ErrInvalidSignature = errors.New("invalid justification signature")
)

// Verifier checks headers and secp256k1 justifications.
type Verifier struct {
	now      func() time.Time
	maxDrift time.Duration
}

var _ module.Verifier = (*Verifier)(nil)

// NewVerifier creates a verifier accepting timestamps up to flow.MaxTimestampDrift
// ahead of the local clock.
func NewVerifier() *Verifier {
	return &Verifier{
		now:      time.Now,
		maxDrift: flow.MaxTimestampDrift,
	}
}

// WithClock replaces the clock used for the timestamp check.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) VerifyHeader(header *flow.Header, signer *flow.Validator, slot uint16) error {
	if header.Type != flow.BlockTypeAt(header.Number) {
		return fmt.Errorf("%w: block %d must be a %s block, got %s", ErrInvalidHeader, header.Number, flow.BlockTypeAt(header.Number), header.Type)
	}
	if header.ProposerSlot != slot {
		return fmt.Errorf("%w: proposer slot %d does not match slot owner %d", ErrInvalidHeader, header.ProposerSlot, slot)
	}
	latest := v.now().Add(v.maxDrift)
	if time.UnixMilli(int64(header.Timestamp)).After(latest) {
		return fmt.Errorf("%w: timestamp %d is too far in the future", ErrInvalidHeader, header.Timestamp)
	}
	if len(signer.PublicKey) == 0 {
		return fmt.Errorf("%w: signer %x has no public key", ErrInvalidHeader, signer.NodeID)
	}
	return nil
}

func (v *Verifier) VerifyJustification(header *flow.Header, justification []byte, signer *flow.Validator) error {
	key, err := secp256k1.ParsePubKey(signer.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: could not parse public key of %x: %v", ErrInvalidSignature, signer.NodeID, err)
	}
	sig, err := ecdsa.ParseDERSignature(justification)
	if err != nil {
		return fmt.Errorf("%w: malformed signature: %v", ErrInvalidSignature, err)
	}
	id := header.ID()
	if !sig.Verify(id[:], key) {
		return fmt.Errorf("%w: signature by %x does not match block %x", ErrInvalidSignature, signer.NodeID, id)
	}
	return nil
}
