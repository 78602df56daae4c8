package fhe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
)

func newTestCoprocessor(t *testing.T) *LocalCoprocessor {
	t.Helper()
	_, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	coproc, err := NewLocalCoprocessor(signingKey)
	require.NoError(t, err)
	return coproc
}

func TestLocalCoprocessor_EncryptProducesDistinctHandles(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	// Sealing is randomized, so equal values must not share a handle.
	a, err := coproc.Encrypt(ctx, 42)
	require.NoError(t, err)
	b, err := coproc.Encrypt(ctx, 42)
	require.NoError(t, err)

	require.False(t, a.IsZero())
	require.NotEqual(t, a, b)
}

func TestLocalCoprocessor_AddAndDecrypt(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	a, err := coproc.Encrypt(ctx, 10)
	require.NoError(t, err)
	b, err := coproc.Encrypt(ctx, 32)
	require.NoError(t, err)

	sum, err := coproc.Add(ctx, a, b)
	require.NoError(t, err)
	require.NotEqual(t, a, sum)
	require.NotEqual(t, b, sum)

	// Chain another addition onto the running sum.
	c, err := coproc.Encrypt(ctx, 100)
	require.NoError(t, err)
	sum, err = coproc.Add(ctx, sum, c)
	require.NoError(t, err)

	requestID, err := coproc.RequestDecryption(ctx, []Ciphertext{sum}, "http://localhost/callback")
	require.NoError(t, err)

	result, proof, err := coproc.Fulfill(requestID)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	values, err := DecodeCleartexts(result.Cleartexts, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(142), values[0])
}

func TestLocalCoprocessor_AddUnknownHandle(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	known, err := coproc.Encrypt(ctx, 1)
	require.NoError(t, err)

	var unknown Ciphertext
	unknown[0] = 0xFF

	_, err = coproc.Add(ctx, known, unknown)
	require.ErrorIs(t, err, ErrUnknownHandle)

	_, err = coproc.Add(ctx, unknown, known)
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestLocalCoprocessor_IsInitialized(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	// The zero handle never references stored data.
	initialized, err := coproc.IsInitialized(ctx, Ciphertext{})
	require.NoError(t, err)
	require.False(t, initialized)

	var unknown Ciphertext
	unknown[31] = 0x01
	initialized, err = coproc.IsInitialized(ctx, unknown)
	require.NoError(t, err)
	require.False(t, initialized)

	handle, err := coproc.Encrypt(ctx, 0)
	require.NoError(t, err)
	initialized, err = coproc.IsInitialized(ctx, handle)
	require.NoError(t, err)
	require.True(t, initialized)
}

func TestLocalCoprocessor_DecryptionLifecycle(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	handles := make([]Ciphertext, 0, 3)
	for _, v := range []uint64{5, 7, 11} {
		h, err := coproc.Encrypt(ctx, v)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	requestID, err := coproc.RequestDecryption(ctx, handles, "http://localhost/callback")
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	pending := coproc.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, requestID, pending[0].RequestID)
	require.Equal(t, "http://localhost/callback", pending[0].CallbackURL)
	require.Len(t, pending[0].Handles, 3)

	result, proof, err := coproc.Fulfill(requestID)
	require.NoError(t, err)
	require.Equal(t, requestID, result.RequestID)

	// Cleartexts come back fixed-width in submission order.
	values, err := DecodeCleartexts(result.Cleartexts, 3)
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 7, 11}, values)

	require.NoError(t, coproc.CheckSignatures(requestID, result.Cleartexts, proof))

	// Fulfillment consumes the request.
	require.Empty(t, coproc.Pending())
	_, _, err = coproc.Fulfill(requestID)
	require.ErrorIs(t, err, ErrUnknownRequest)
}

func TestLocalCoprocessor_RequestDecryptionValidatesHandles(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	_, err := coproc.RequestDecryption(ctx, nil, "http://localhost/callback")
	require.Error(t, err)

	var unknown Ciphertext
	unknown[0] = 0xAB
	_, err = coproc.RequestDecryption(ctx, []Ciphertext{unknown}, "http://localhost/callback")
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestLocalCoprocessor_CheckSignaturesRejectsTampering(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	handle, err := coproc.Encrypt(ctx, 99)
	require.NoError(t, err)
	requestID, err := coproc.RequestDecryption(ctx, []Ciphertext{handle}, "http://localhost/callback")
	require.NoError(t, err)
	result, proof, err := coproc.Fulfill(requestID)
	require.NoError(t, err)

	// Wrong request identifier.
	require.Error(t, coproc.CheckSignatures("not-the-request", result.Cleartexts, proof))

	// Altered cleartexts.
	altered := append([]byte{}, result.Cleartexts...)
	altered[len(altered)-1] ^= 0x01
	require.Error(t, coproc.CheckSignatures(requestID, altered, proof))

	// Corrupted proof bytes.
	badProof := append([]byte{}, proof...)
	badProof[0] ^= 0x01
	require.Error(t, coproc.CheckSignatures(requestID, result.Cleartexts, badProof))
}

func TestLocalCoprocessor_CheckSignaturesRejectsForeignSigner(t *testing.T) {
	coproc := newTestCoprocessor(t)
	ctx := context.Background()

	handle, err := coproc.Encrypt(ctx, 1)
	require.NoError(t, err)
	requestID, err := coproc.RequestDecryption(ctx, []Ciphertext{handle}, "http://localhost/callback")
	require.NoError(t, err)
	result, _, err := coproc.Fulfill(requestID)
	require.NoError(t, err)

	// A well-formed proof under someone else's key must not verify.
	_, foreignKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	forged, err := SignDecryptionResult(foreignKey, result)
	require.NoError(t, err)

	err = coproc.CheckSignatures(requestID, result.Cleartexts, forged)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not the coprocessor")
}
