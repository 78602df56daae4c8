package fhe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveHandle(t *testing.T) {
	a := DeriveHandle([]byte("sealed-payload-one"))
	b := DeriveHandle([]byte("sealed-payload-two"))

	require.False(t, a.IsZero())
	require.NotEqual(t, a, b)

	// Derivation is deterministic over the sealed bytes.
	require.Equal(t, a, DeriveHandle([]byte("sealed-payload-one")))
}

func TestCiphertext_StringRoundTrip(t *testing.T) {
	handle := DeriveHandle([]byte("some sealed value"))

	parsed, err := NewCiphertextFromString(handle.String())
	require.NoError(t, err)
	require.Equal(t, handle, parsed)
}

func TestNewCiphertextFromString_Invalid(t *testing.T) {
	_, err := NewCiphertextFromString("not-hex")
	require.Error(t, err)

	// Wrong length, even when valid hex.
	_, err = NewCiphertextFromString("0102")
	require.Error(t, err)
}

func TestCiphertext_JSONEncoding(t *testing.T) {
	handle := DeriveHandle([]byte("json encoding"))

	encoded, err := json.Marshal(handle)
	require.NoError(t, err)
	// Handles travel as hex strings, not byte arrays.
	require.Equal(t, `"`+handle.String()+`"`, string(encoded))

	var decoded Ciphertext
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, handle, decoded)
}

func TestCleartextCodec(t *testing.T) {
	payload := EncodeCleartexts([]uint64{1, 0, 18446744073709551615})
	require.Len(t, payload, 3*CleartextWidth)

	values, err := DecodeCleartexts(payload, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 0, 18446744073709551615}, values)
}

func TestDecodeCleartexts_WrongLength(t *testing.T) {
	payload := EncodeCleartexts([]uint64{1, 2})

	// Expecting a different count than the payload carries is an error in
	// both directions, as is a truncated payload.
	_, err := DecodeCleartexts(payload, 3)
	require.Error(t, err)
	_, err = DecodeCleartexts(payload, 1)
	require.Error(t, err)
	_, err = DecodeCleartexts(payload[:len(payload)-1], 2)
	require.Error(t, err)
}
