package fhe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
)

// PublishedSigners lists the keys a coprocessor deployment signs decryption
// results with. Fetched from a public URL and used to verify proofs delivered
// through the callback path.
//
// JSON format:
//
//	[
//	  {
//	    "signer_id": "oracle-v1-primary",
//	    "public_key": "hex-encoded-ed25519-key..."
//	  }
//	]
//
// A proof is accepted if its signer matches any entry in the array, which
// allows key rotation with an overlap window.
type PublishedSigners []SignerEntry

// SignerEntry names a single acceptable result-signing key.
type SignerEntry struct {
	SignerID  string `json:"signer_id"`
	PublicKey string `json:"public_key"`
}

// SignerSource provides the trusted result-signing keys for proof
// verification.
type SignerSource interface {
	// GetTrustedSigners returns all acceptable signing keys.
	GetTrustedSigners() (PublishedSigners, error)
}

// StaticSignerSource provides signers from a static configuration. Useful for
// testing and single-oracle deployments where the signing key is known in
// advance.
type StaticSignerSource struct {
	Signers PublishedSigners
}

// NewStaticSignerSource creates a source with predefined signers.
func NewStaticSignerSource(signers PublishedSigners) *StaticSignerSource {
	return &StaticSignerSource{Signers: signers}
}

// SingleSignerSource returns a SignerSource trusting exactly one key.
func SingleSignerSource(signerID string, publicKey crypto.PublicKey) *StaticSignerSource {
	return NewStaticSignerSource(PublishedSigners{
		{SignerID: signerID, PublicKey: publicKey.String()},
	})
}

// GetTrustedSigners returns the static signer set.
func (s *StaticSignerSource) GetTrustedSigners() (PublishedSigners, error) {
	return s.Signers, nil
}

// RemoteSignerSource fetches signers from a URL.
type RemoteSignerSource struct {
	URL        string
	HTTPClient *http.Client

	cacheTimeout time.Time
	cached       PublishedSigners
}

// NewRemoteSignerSource creates a source that fetches from a URL.
func NewRemoteSignerSource(url string) *RemoteSignerSource {
	return &RemoteSignerSource{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetTrustedSigners fetches and returns all acceptable signing keys.
func (r *RemoteSignerSource) GetTrustedSigners() (PublishedSigners, error) {
	if r.cached != nil && time.Now().Before(r.cacheTimeout) {
		return r.cached, nil
	}

	published, err := r.fetchSigners()
	if err != nil {
		return nil, err
	}

	r.cached = published
	r.cacheTimeout = time.Now().Add(time.Hour)
	return published, nil
}

func (r *RemoteSignerSource) fetchSigners() (PublishedSigners, error) {
	resp, err := r.HTTPClient.Get(r.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching signers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signers returned %d: %s", resp.StatusCode, body)
	}

	var pub PublishedSigners
	if err := json.NewDecoder(resp.Body).Decode(&pub); err != nil {
		return nil, fmt.Errorf("decoding signers: %w", err)
	}

	return pub, nil
}

// VerifySignerTrusted checks a recovered proof signer against the published
// set and returns the matching entry.
func VerifySignerTrusted(published PublishedSigners, signer crypto.PublicKey) (SignerEntry, error) {
	for _, entry := range published {
		trusted, err := crypto.NewPublicKeyFromString(entry.PublicKey)
		if err != nil {
			return SignerEntry{}, fmt.Errorf("invalid published key for %s: %w", entry.SignerID, err)
		}
		if signer.Equal(trusted) {
			return entry, nil
		}
	}

	return SignerEntry{}, errors.New("signer does not match any trusted key")
}
