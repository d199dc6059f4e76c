package ledgercore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapDatabaseNil(t *testing.T) {
	assert.NoError(t, WrapDatabase("op", nil))
}

func TestWrapDatabaseUnwraps(t *testing.T) {
	underlying := errors.New("connection refused")
	wrapped := WrapDatabase("store.Open", underlying)

	require := wrapped.(*Database)
	assert.Equal(t, "store.Open", require.Op)
	assert.True(t, errors.Is(wrapped, underlying))
	assert.Contains(t, wrapped.Error(), "store.Open")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrRowNotFound,
		ErrConflictingReservation,
		ErrAlreadyTerminal,
		ErrLedgerImbalance,
		ErrSerialization,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "sentinels %v and %v should be distinct", a, b)
		}
	}
}
