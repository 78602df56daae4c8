package crypto

import "golang.org/x/crypto/sha3"

const stateDigestTag = "startrader-state-v1"

// StateDigest computes a SHA3-256 digest over an ordered list of fixed-width
// ciphertext handles and a deployment identity. Binding the identity into
// the digest keeps a proof captured from one deployment from verifying
// against another whose handles happen to encode equally. The handles are
// hashed before the variable-length identity so field boundaries stay
// unambiguous.
func StateDigest(instanceID string, handles ...[]byte) []byte {
	h := sha3.New256()
	h.Write([]byte(stateDigestTag))
	for _, handle := range handles {
		h.Write(handle)
	}
	h.Write([]byte(instanceID))
	return h.Sum(nil)
}
