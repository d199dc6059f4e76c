package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountIdRoundTrip(t *testing.T) {
	id := NewAccountId()
	parsed, err := ParseAccountId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestAccountIdUniqueness(t *testing.T) {
	assert.NotEqual(t, NewAccountId(), NewAccountId())
}

func TestParseAccountIdInvalid(t *testing.T) {
	_, err := ParseAccountId("not-a-uuid")
	assert.Error(t, err)
}

func TestIdValueAndScanRoundTrip(t *testing.T) {
	orig := NewLedgerAccountId()

	v, err := orig.Value()
	require.NoError(t, err)

	var scanned LedgerAccountId
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, orig, scanned)

	var scannedBytes LedgerAccountId
	require.NoError(t, scannedBytes.Scan([]byte(orig.String())))
	assert.Equal(t, orig, scannedBytes)
}

func TestIdScanUnsupportedType(t *testing.T) {
	var id LedgerAccountId
	err := id.Scan(42)
	assert.Error(t, err)
}

func TestEveryIdKindRoundTrips(t *testing.T) {
	wallet := NewWalletId()
	w2, err := ParseWalletId(wallet.String())
	require.NoError(t, err)
	assert.Equal(t, wallet, w2)

	keychain := NewKeychainId()
	k2, err := ParseKeychainId(keychain.String())
	require.NoError(t, err)
	assert.Equal(t, keychain, k2)

	batch := NewBatchId()
	b2, err := ParseBatchId(batch.String())
	require.NoError(t, err)
	assert.Equal(t, batch, b2)

	txId := NewLedgerTransactionId()
	t2, err := ParseLedgerTransactionId(txId.String())
	require.NoError(t, err)
	assert.Equal(t, txId, t2)
}
