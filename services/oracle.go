package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// OracleConfig configures callback delivery behavior.
type OracleConfig struct {
	// AutoFulfill decrypts and delivers every accepted request without an
	// operator step. Disable it to drive fulfillment through the
	// /oracle/fulfill endpoint instead.
	AutoFulfill bool

	// FulfillDelay postpones automatic delivery. Useful for exercising the
	// window in which the aggregate can move under a pending request.
	FulfillDelay time.Duration
}

// OracleHandler exposes a local coprocessor over the wire protocol that
// RemoteCoprocessor speaks, plus operator endpoints for inspecting and
// fulfilling pending decryption requests.
type OracleHandler struct {
	config     *OracleConfig
	coproc     *fhe.LocalCoprocessor
	log        *slog.Logger
	httpClient *http.Client
}

// NewOracleHandler creates a handler around the given coprocessor.
func NewOracleHandler(config *OracleConfig, coproc *fhe.LocalCoprocessor, log *slog.Logger) *OracleHandler {
	if config == nil {
		config = &OracleConfig{}
	}
	return &OracleHandler{
		config:     config,
		coproc:     coproc,
		log:        log,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// RegisterRoutes registers the coprocessor wire endpoints and the operator
// endpoints.
func (o *OracleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/coprocessor", func(r chi.Router) {
		r.Post("/encrypt", o.handleEncrypt)
		r.Post("/add", o.handleAdd)
		r.Get("/initialized/{handle}", o.handleInitialized)
		r.Post("/request-decryption", o.handleRequestDecryption)
	})

	r.Route("/oracle", func(r chi.Router) {
		r.Get("/signers", o.handleSigners)
		r.Get("/pending", o.handlePending)
		r.Post("/fulfill/{request_id}", o.handleFulfill)
	})
}

func (o *OracleHandler) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req fhe.EncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := o.coproc.Encrypt(r.Context(), req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(&fhe.EncryptResponse{Handle: handle})
}

func (o *OracleHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req fhe.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := o.coproc.Add(r.Context(), req.Left, req.Right)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(&fhe.AddResponse{Handle: handle})
}

func (o *OracleHandler) handleInitialized(w http.ResponseWriter, r *http.Request) {
	handle, err := fhe.NewCiphertextFromString(chi.URLParam(r, "handle"))
	if err != nil {
		http.Error(w, "invalid handle", http.StatusBadRequest)
		return
	}

	initialized, err := o.coproc.IsInitialized(r.Context(), handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(&fhe.InitializedResponse{Initialized: initialized})
}

func (o *OracleHandler) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	var req fhe.DecryptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	requestID, err := o.coproc.RequestDecryption(r.Context(), req.Handles, req.CallbackURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o.log.Info("decryption requested", "requestID", requestID, "handles", len(req.Handles))

	if o.config.AutoFulfill {
		go func() {
			if o.config.FulfillDelay > 0 {
				time.Sleep(o.config.FulfillDelay)
			}
			if err := o.Fulfill(context.Background(), requestID); err != nil {
				o.log.Error("fulfilling decryption request", "requestID", requestID, "err", err)
			}
		}()
	}

	json.NewEncoder(w).Encode(&fhe.DecryptionRequestResponse{RequestID: requestID})
}

func (o *OracleHandler) handleSigners(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(fhe.PublishedSigners{{
		SignerID:  "local-oracle",
		PublicKey: o.coproc.SignerPublicKey().String(),
	}})
}

func (o *OracleHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(o.coproc.Pending())
}

func (o *OracleHandler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")

	if err := o.Fulfill(r.Context(), requestID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, fhe.ErrUnknownRequest) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}

// Fulfill decrypts a pending request and posts the signed result to the
// callback URL recorded at request time. A rejected callback leaves the
// market side unprocessed; the request itself is consumed either way.
func (o *OracleHandler) Fulfill(ctx context.Context, requestID string) error {
	var callbackURL string
	for _, p := range o.coproc.Pending() {
		if p.RequestID == requestID {
			callbackURL = p.CallbackURL
			break
		}
	}
	if callbackURL == "" {
		return fmt.Errorf("%w: %s", fhe.ErrUnknownRequest, requestID)
	}

	result, proof, err := o.coproc.Fulfill(requestID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(&fhe.DecryptionCallback{
		RequestID:  result.RequestID,
		Cleartexts: result.Cleartexts,
		Proof:      proof,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivering callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("callback rejected (%d): %s", resp.StatusCode, msg)
	}

	o.log.Info("callback delivered", "requestID", requestID)
	return nil
}
