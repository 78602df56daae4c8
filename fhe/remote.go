package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Wire types shared between RemoteCoprocessor and the oracle's HTTP surface.

type EncryptRequest struct {
	Value uint64 `json:"value"`
}

type EncryptResponse struct {
	Handle Ciphertext `json:"handle"`
}

type AddRequest struct {
	Left  Ciphertext `json:"left"`
	Right Ciphertext `json:"right"`
}

type AddResponse struct {
	Handle Ciphertext `json:"handle"`
}

type InitializedResponse struct {
	Initialized bool `json:"initialized"`
}

type DecryptionRequest struct {
	Handles     []Ciphertext `json:"handles"`
	CallbackURL string       `json:"callback_url"`
}

type DecryptionRequestResponse struct {
	RequestID string `json:"request_id"`
}

// DecryptionCallback is the body the oracle posts to the callback URL once a
// request is fulfilled.
type DecryptionCallback struct {
	RequestID  string `json:"request_id"`
	Cleartexts []byte `json:"cleartexts"`
	Proof      []byte `json:"proof"`
}

// RemoteCoprocessor talks to an oracle service over HTTP. Proofs are checked
// against the keys published through the configured SignerSource, so the
// transport does not need to be trusted.
type RemoteCoprocessor struct {
	Endpoint   string
	HTTPClient *http.Client

	signers SignerSource
}

// NewRemoteCoprocessor creates a client for the oracle at endpoint.
func NewRemoteCoprocessor(endpoint string, signers SignerSource) *RemoteCoprocessor {
	return &RemoteCoprocessor{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		signers:    signers,
	}
}

func (r *RemoteCoprocessor) Encrypt(ctx context.Context, value uint64) (Ciphertext, error) {
	var resp EncryptResponse
	if err := r.postJSON(ctx, "/coprocessor/encrypt", &EncryptRequest{Value: value}, &resp); err != nil {
		return Ciphertext{}, err
	}
	return resp.Handle, nil
}

func (r *RemoteCoprocessor) Add(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	var resp AddResponse
	if err := r.postJSON(ctx, "/coprocessor/add", &AddRequest{Left: a, Right: b}, &resp); err != nil {
		return Ciphertext{}, err
	}
	return resp.Handle, nil
}

func (r *RemoteCoprocessor) IsInitialized(ctx context.Context, handle Ciphertext) (bool, error) {
	if handle.IsZero() {
		return false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Endpoint+"/coprocessor/initialized/"+handle.String(), nil)
	if err != nil {
		return false, err
	}

	httpResp, err := r.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying oracle: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return false, fmt.Errorf("oracle returned %d: %s", httpResp.StatusCode, body)
	}

	var resp InitializedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return false, fmt.Errorf("decoding oracle response: %w", err)
	}
	return resp.Initialized, nil
}

func (r *RemoteCoprocessor) RequestDecryption(ctx context.Context, handles []Ciphertext, callbackURL string) (string, error) {
	var resp DecryptionRequestResponse
	err := r.postJSON(ctx, "/coprocessor/request-decryption", &DecryptionRequest{
		Handles:     handles,
		CallbackURL: callbackURL,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

func (r *RemoteCoprocessor) CheckSignatures(requestID string, cleartexts []byte, proof []byte) error {
	signer, err := RecoverDecryptionProof(requestID, cleartexts, proof)
	if err != nil {
		return err
	}

	published, err := r.signers.GetTrustedSigners()
	if err != nil {
		return fmt.Errorf("loading trusted signers: %w", err)
	}

	if _, err := VerifySignerTrusted(published, signer); err != nil {
		return err
	}
	return nil
}

func (r *RemoteCoprocessor) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling oracle: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("oracle returned %d: %s", httpResp.StatusCode, msg)
	}

	return json.NewDecoder(httpResp.Body).Decode(respBody)
}
