package primitives

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33"

func TestOutPointStringRoundTrip(t *testing.T) {
	op, err := NewOutPoint(sampleTxID, 2)
	require.NoError(t, err)
	assert.Equal(t, sampleTxID+":2", op.String())
}

func TestOutPointEqual(t *testing.T) {
	a, err := NewOutPoint(sampleTxID, 0)
	require.NoError(t, err)
	b, err := NewOutPoint(sampleTxID, 0)
	require.NoError(t, err)
	c, err := NewOutPoint(sampleTxID, 1)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestOutPointMarshalUnmarshalText(t *testing.T) {
	op, err := NewOutPoint(sampleTxID, 7)
	require.NoError(t, err)

	text, err := op.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, sampleTxID+":7", string(text))

	var parsed OutPoint
	require.NoError(t, parsed.UnmarshalText(text))
	assert.True(t, op.Equal(parsed))
}

func TestOutPointAsJSONMapKey(t *testing.T) {
	op, err := NewOutPoint(sampleTxID, 3)
	require.NoError(t, err)

	m := map[OutPoint]int64{op: 1500}
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var roundTripped map[OutPoint]int64
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, int64(1500), roundTripped[op])
}

func TestOutPointUnmarshalTextMissingVout(t *testing.T) {
	var op OutPoint
	err := op.UnmarshalText([]byte(sampleTxID))
	assert.Error(t, err)
}

func TestParseKeychainKind(t *testing.T) {
	k, err := ParseKeychainKind("external")
	require.NoError(t, err)
	assert.Equal(t, KeychainExternal, k)

	_, err = ParseKeychainKind("bogus")
	assert.Error(t, err)
}
