package fhe

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
)

var (
	// ErrUnknownHandle is returned when an operation references a handle the
	// coprocessor has no stored ciphertext for.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrUnknownRequest is returned when a decryption request identifier is
	// not recognized.
	ErrUnknownRequest = errors.New("unknown decryption request")
)

// Coprocessor abstracts the confidential-computing service that stores
// encrypted values and operates on them. All market-side aggregation code is
// written against this interface; see LocalCoprocessor and
// RemoteCoprocessor for the provided implementations.
type Coprocessor interface {
	// Encrypt produces a fresh ciphertext handle for a 64-bit value.
	// Encrypting zero yields the initial value for an accumulator.
	Encrypt(ctx context.Context, value uint64) (Ciphertext, error)

	// Add returns a handle for the homomorphic sum of the two operands.
	// Neither operand is modified.
	Add(ctx context.Context, a, b Ciphertext) (Ciphertext, error)

	// IsInitialized reports whether the handle references stored data.
	// The zero handle is never initialized.
	IsInitialized(ctx context.Context, handle Ciphertext) (bool, error)

	// RequestDecryption submits handles for asynchronous disclosure and
	// returns a fresh request identifier. The decrypted values and proof are
	// delivered later to the callback target; delivery timing is entirely
	// the oracle's, and may span many intervening operations.
	RequestDecryption(ctx context.Context, handles []Ciphertext, callbackURL string) (string, error)

	// CheckSignatures verifies the oracle's proof over a decryption result.
	// It returns nil only when the proof covers exactly this request
	// identifier and cleartext payload and was produced by a trusted signer.
	CheckSignatures(requestID string, cleartexts []byte, proof []byte) error
}

// DecryptionResult is the payload the oracle signs when fulfilling a
// decryption request. Cleartexts hold the fixed-width values in the order
// the handles were submitted.
type DecryptionResult struct {
	RequestID  string `json:"request_id"`
	Cleartexts []byte `json:"cleartexts"`
}

// SignDecryptionResult produces the proof bytes for a decryption result:
// a JSON-encoded signed envelope under the oracle's key.
func SignDecryptionResult(oracleKey crypto.PrivateKey, result *DecryptionResult) ([]byte, error) {
	signed, err := crypto.NewSigned(oracleKey, result)
	if err != nil {
		return nil, fmt.Errorf("signing decryption result: %w", err)
	}
	return crypto.SerializeMessage(signed)
}

// RecoverDecryptionProof checks that proof is internally consistent with the
// given request identifier and cleartext payload and returns the signer's
// public key. Callers must still decide whether the signer is trusted.
func RecoverDecryptionProof(requestID string, cleartexts []byte, proof []byte) (crypto.PublicKey, error) {
	signed, err := crypto.UnmarshalMessage[crypto.Signed[DecryptionResult]](proof)
	if err != nil {
		return nil, fmt.Errorf("malformed proof: %w", err)
	}

	result, signer, err := signed.Recover()
	if err != nil {
		return nil, fmt.Errorf("proof signature: %w", err)
	}

	if result.RequestID != requestID {
		return nil, fmt.Errorf("proof covers request %q, not %q", result.RequestID, requestID)
	}
	if !bytes.Equal(result.Cleartexts, cleartexts) {
		return nil, errors.New("proof covers different cleartexts")
	}

	return signer, nil
}
