package committees_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/module/committees"
	"github.com/onflow/pos-sync/utils/unittest"
)

func TestStatic_SlotOwnerAt(t *testing.T) {
	validators := unittest.ValidatorListFixture(4)
	committee, err := committees.NewStatic(validators)
	require.NoError(t, err)

	seen := make(map[uint16]struct{})
	for number := uint32(1); number < 200; number++ {
		owner, slot, ok := committee.SlotOwnerAt(number, 0)
		require.True(t, ok)
		require.Less(t, int(slot), len(validators))
		assert.Equal(t, validators[slot], owner)

		// deterministic
		again, againSlot, _ := committee.SlotOwnerAt(number, 0)
		assert.Equal(t, owner, again)
		assert.Equal(t, slot, againSlot)
		seen[slot] = struct{}{}
	}
	// every validator owns some slot over a long enough range
	assert.Len(t, seen, len(validators))

	byID, ok := committee.ByNodeID(validators[2].NodeID)
	require.True(t, ok)
	assert.Equal(t, validators[2], byID)
}

func TestStatic_InvalidSets(t *testing.T) {
	_, err := committees.NewStatic(nil)
	assert.Error(t, err)

	validator := &flow.Validator{NodeID: unittest.IdentifierFixture()}
	_, err = committees.NewStatic([]*flow.Validator{validator, validator})
	assert.Error(t, err)
}
