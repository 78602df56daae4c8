package fhe

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
)

var two64 = new(big.Int).Lsh(big.NewInt(1), 64)

// PendingDecryption describes a decryption request that has been accepted but
// not yet fulfilled.
type PendingDecryption struct {
	RequestID   string
	Handles     []Ciphertext
	CallbackURL string
	Requested   time.Time
}

// LocalCoprocessor is an in-process Coprocessor. Values are sealed at rest
// with the coprocessor's exchange key, summed in a prime field, and disclosed
// only through signed decryption results. Fulfillment is explicit: nothing is
// decrypted until Fulfill is called for a pending request, so callers control
// exactly when the oracle answers.
type LocalCoprocessor struct {
	signingKey crypto.PrivateKey
	signerPub  crypto.PublicKey
	sealingKey *ecdh.PrivateKey

	stateMutex sync.Mutex
	values     map[Ciphertext][]byte
	pending    map[string]*PendingDecryption
}

func NewLocalCoprocessor(signingKey crypto.PrivateKey) (*LocalCoprocessor, error) {
	signerPub, err := signingKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	sealingKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sealing key: %w", err)
	}
	return &LocalCoprocessor{
		signingKey: signingKey,
		signerPub:  signerPub,
		sealingKey: sealingKey,
		values:     make(map[Ciphertext][]byte),
		pending:    make(map[string]*PendingDecryption),
	}, nil
}

// SignerPublicKey returns the key the coprocessor signs decryption results
// with. Remote deployments publish this through a SignerSource.
func (c *LocalCoprocessor) SignerPublicKey() crypto.PublicKey {
	return c.signerPub
}

func (c *LocalCoprocessor) Encrypt(ctx context.Context, value uint64) (Ciphertext, error) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	return c.seal(new(big.Int).SetUint64(value))
}

func (c *LocalCoprocessor) Add(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	left, err := c.unseal(a)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("left operand %s: %w", a, err)
	}
	right, err := c.unseal(b)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("right operand %s: %w", b, err)
	}

	crypto.FieldAddInplace(left, right, crypto.MetricFieldOrder)
	return c.seal(left)
}

func (c *LocalCoprocessor) IsInitialized(ctx context.Context, handle Ciphertext) (bool, error) {
	if handle.IsZero() {
		return false, nil
	}
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	_, ok := c.values[handle]
	return ok, nil
}

func (c *LocalCoprocessor) RequestDecryption(ctx context.Context, handles []Ciphertext, callbackURL string) (string, error) {
	if len(handles) == 0 {
		return "", fmt.Errorf("no handles submitted for decryption")
	}

	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	for _, handle := range handles {
		if _, ok := c.values[handle]; !ok {
			return "", fmt.Errorf("handle %s: %w", handle, ErrUnknownHandle)
		}
	}

	requestID := uuid.New().String()
	c.pending[requestID] = &PendingDecryption{
		RequestID:   requestID,
		Handles:     append([]Ciphertext{}, handles...),
		CallbackURL: callbackURL,
		Requested:   time.Now(),
	}
	return requestID, nil
}

func (c *LocalCoprocessor) CheckSignatures(requestID string, cleartexts []byte, proof []byte) error {
	signer, err := RecoverDecryptionProof(requestID, cleartexts, proof)
	if err != nil {
		return err
	}
	if !signer.Equal(c.signerPub) {
		return fmt.Errorf("proof signed by %s, not the coprocessor", signer)
	}
	return nil
}

// Pending lists requests awaiting fulfillment, oldest first not guaranteed.
func (c *LocalCoprocessor) Pending() []PendingDecryption {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	out := make([]PendingDecryption, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, *p)
	}
	return out
}

// Fulfill decrypts the handles of a pending request and returns the signed
// result along with its proof. The request is consumed: fulfilling the same
// identifier twice fails with ErrUnknownRequest.
func (c *LocalCoprocessor) Fulfill(requestID string) (*DecryptionResult, []byte, error) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	req, ok := c.pending[requestID]
	if !ok {
		return nil, nil, fmt.Errorf("request %s: %w", requestID, ErrUnknownRequest)
	}

	values := make([]uint64, 0, len(req.Handles))
	for _, handle := range req.Handles {
		value, err := c.unseal(handle)
		if err != nil {
			return nil, nil, fmt.Errorf("handle %s: %w", handle, err)
		}
		// Accumulators are 64-bit on the market side, field elements here.
		values = append(values, new(big.Int).Mod(value, two64).Uint64())
	}

	result := &DecryptionResult{
		RequestID:  requestID,
		Cleartexts: EncodeCleartexts(values),
	}
	proof, err := SignDecryptionResult(c.signingKey, result)
	if err != nil {
		return nil, nil, err
	}

	delete(c.pending, requestID)
	return result, proof, nil
}

func (c *LocalCoprocessor) seal(value *big.Int) (Ciphertext, error) {
	msg, err := crypto.Encrypt(c.sealingKey.PublicKey(), value.Bytes())
	if err != nil {
		return Ciphertext{}, fmt.Errorf("failed to seal value: %w", err)
	}
	sealed := msg.Bytes()
	handle := DeriveHandle(sealed)
	c.values[handle] = sealed
	return handle, nil
}

func (c *LocalCoprocessor) unseal(handle Ciphertext) (*big.Int, error) {
	sealed, ok := c.values[handle]
	if !ok {
		return nil, ErrUnknownHandle
	}
	msg, err := crypto.ParseEncryptedMessage(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sealed value: %w", err)
	}
	plaintext, err := crypto.Decrypt(c.sealingKey, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal value: %w", err)
	}
	return new(big.Int).SetBytes(plaintext), nil
}
