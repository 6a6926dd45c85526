package committees

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module"
)

// Static is a validator selector over a fixed validator set. The owner of a
// slot is derived deterministically from the block number and view, so every
// node with the same validator set agrees on it.
type Static struct {
	validators []*flow.Validator
	byNodeID   map[flow.Identifier]*flow.Validator
}

var _ module.ValidatorSelector = (*Static)(nil)

// NewStatic creates a selector for the given validator set.
func NewStatic(validators []*flow.Validator) (*Static, error) {
	if len(validators) == 0 {
		return nil, fmt.Errorf("validator set must not be empty")
	}
	if len(validators) > int(^uint16(0))+1 {
		return nil, fmt.Errorf("too many validators: %d", len(validators))
	}
	byNodeID := make(map[flow.Identifier]*flow.Validator, len(validators))
	for _, validator := range validators {
		if _, dup := byNodeID[validator.NodeID]; dup {
			return nil, fmt.Errorf("duplicate validator %x", validator.NodeID)
		}
		byNodeID[validator.NodeID] = validator
	}
	return &Static{
		validators: validators,
		byNodeID:   byNodeID,
	}, nil
}

func (s *Static) SlotOwnerAt(number uint32, view uint32) (*flow.Validator, uint16, bool) {
	if len(s.validators) == 0 {
		return nil, 0, false
	}
	var seed [8]byte
	binary.BigEndian.PutUint32(seed[:4], number)
	binary.BigEndian.PutUint32(seed[4:], view)
	digest := sha3.Sum256(seed[:])
	slot := binary.BigEndian.Uint64(digest[:8]) % uint64(len(s.validators))
	return s.validators[slot], uint16(slot), true
}

// ByNodeID returns the validator with the given node ID.
func (s *Static) ByNodeID(nodeID flow.Identifier) (*flow.Validator, bool) {
	validator, ok := s.byNodeID[nodeID]
	return validator, ok
}

// Validators returns the validator set in slot order.
func (s *Static) Validators() []*flow.Validator {
	return s.validators
}
