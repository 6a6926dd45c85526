package module

import (
	"github.com/onflow/pos-sync/model/flow"
)

// ValidatorSelector resolves the validator entitled to produce a block.
type ValidatorSelector interface {
	// SlotOwnerAt returns the validator owning the slot for the given block
	// number and view, together with the slot index. The boolean is false if
	// no owner can be resolved, which implies a corrupted validator set.
	SlotOwnerAt(number uint32, view uint32) (*flow.Validator, uint16, bool)
}

// Verifier performs the cryptographic and structural checks of a block.
type Verifier interface {
	// VerifyHeader checks the header against the intended signer and slot.
	VerifyHeader(header *flow.Header, signer *flow.Validator, slot uint16) error

	// VerifyJustification checks that the signer produced the block.
	VerifyJustification(header *flow.Header, justification []byte, signer *flow.Validator) error
}
