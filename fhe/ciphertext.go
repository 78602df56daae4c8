package fhe

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// CleartextWidth is the byte width of one decrypted value in a cleartext
// payload. Values are encoded big-endian in the order they were requested.
const CleartextWidth = 8

// Ciphertext is an opaque handle referencing an encrypted 64-bit value held
// by the coprocessor. The zero value is the uninitialized handle: it never
// references stored data and is what accumulators hold before first use.
type Ciphertext [HandleSize]byte

// NewCiphertextFromBytes creates a handle from raw bytes.
func NewCiphertextFromBytes(data []byte) (Ciphertext, error) {
	var ct Ciphertext
	if len(data) != HandleSize {
		return ct, fmt.Errorf("invalid handle length %d, want %d", len(data), HandleSize)
	}
	copy(ct[:], data)
	return ct, nil
}

// NewCiphertextFromString creates a handle from its hex representation.
func NewCiphertextFromString(data string) (Ciphertext, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return Ciphertext{}, err
	}
	return NewCiphertextFromBytes(raw)
}

// Bytes returns the handle as a byte slice.
func (ct Ciphertext) Bytes() []byte {
	return ct[:]
}

// IsZero reports whether this is the uninitialized handle.
func (ct Ciphertext) IsZero() bool {
	return ct == Ciphertext{}
}

// String returns the hex representation of the handle.
func (ct Ciphertext) String() string {
	return hex.EncodeToString(ct[:])
}

// MarshalText encodes the handle as hex for JSON and text formats.
func (ct Ciphertext) MarshalText() ([]byte, error) {
	return []byte(ct.String()), nil
}

// UnmarshalText decodes a hex-encoded handle.
func (ct *Ciphertext) UnmarshalText(text []byte) error {
	decoded, err := NewCiphertextFromString(string(text))
	if err != nil {
		return err
	}
	*ct = decoded
	return nil
}

// DeriveHandle computes the handle for a sealed ciphertext blob.
// Handles are content-derived, so identical sealed blobs share a handle.
func DeriveHandle(sealed []byte) Ciphertext {
	return Ciphertext(sha3.Sum256(sealed))
}

// EncodeCleartexts packs decrypted values into a fixed-width big-endian
// payload, preserving order.
func EncodeCleartexts(values []uint64) []byte {
	payload := make([]byte, 0, len(values)*CleartextWidth)
	for _, v := range values {
		payload = binary.BigEndian.AppendUint64(payload, v)
	}
	return payload
}

// DecodeCleartexts unpacks a fixed-width payload into exactly n values.
// The payload length must match n exactly; anything else indicates a
// malformed or truncated oracle response.
func DecodeCleartexts(payload []byte, n int) ([]uint64, error) {
	if len(payload) != n*CleartextWidth {
		return nil, fmt.Errorf("cleartext payload is %d bytes, want %d", len(payload), n*CleartextWidth)
	}
	values := make([]uint64, n)
	for i := range values {
		values[i] = binary.BigEndian.Uint64(payload[i*CleartextWidth:])
	}
	return values, nil
}
