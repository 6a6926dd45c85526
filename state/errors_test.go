package state_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/onflow/pos-sync/state"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("cause")

	invalid := []error{
		state.NewInvalidHeaderErrorf("header: %w", cause),
		state.NewInvalidJustificationErrorf("justification: %w", cause),
		state.NewInvalidSuccessorErrorf("successor: %w", cause),
		state.NewInvalidForkErrorf("fork: %w", cause),
		state.NewDuplicateTransactionErrorf("duplicate: %w", cause),
	}
	for _, err := range invalid {
		wrapped := fmt.Errorf("push failed: %w", err)
		assert.True(t, state.IsInvalidBlockError(wrapped), err.Error())
		assert.False(t, state.IsOrphanBlockError(wrapped), err.Error())
		assert.ErrorIs(t, wrapped, cause)
	}

	orphan := state.NewOrphanBlockErrorf("unknown parent %d", 3)
	assert.True(t, state.IsOrphanBlockError(orphan))
	assert.False(t, state.IsInvalidBlockError(orphan))
	assert.False(t, state.IsInvalidBlockError(cause))

	assert.True(t, state.IsInvalidForkError(invalid[3]))
	assert.False(t, state.IsInvalidForkError(invalid[0]))
}
