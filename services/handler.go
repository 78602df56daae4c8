package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// MarketHandler exposes one market instance over HTTP. Mutating endpoints
// accept crypto.Signed envelopes and resolve the acting identity from the
// recovered signer; the market core decides whether that identity may act.
//
// After every successful mutation the handler writes a fresh state snapshot
// through to the store.
type MarketHandler struct {
	market *protocol.Market
	store  MarketStore
	log    *slog.Logger

	mu sync.Mutex
	// sequences tracks the highest sequence seen per actor. The window is
	// in-memory only: after a restart the node accepts any sequence again,
	// so clients derive sequences from wall clocks rather than counters.
	sequences map[protocol.Actor]uint64
	// results caches decrypted values by request id for the status
	// endpoint. The audit log keeps the durable copy.
	results map[string]*protocol.DisclosureResult
}

// NewMarketHandler creates a handler serving the given market.
func NewMarketHandler(market *protocol.Market, store MarketStore, log *slog.Logger) *MarketHandler {
	currentBatchGauge.Set(float64(market.CurrentBatch().ID))
	return &MarketHandler{
		market:    market,
		store:     store,
		log:       log,
		sequences: make(map[protocol.Actor]uint64),
		results:   make(map[string]*protocol.DisclosureResult),
	}
}

// RegisterRoutes registers the market, admin and oracle callback endpoints.
func (h *MarketHandler) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/status", h.handleStatus)
		r.Get("/aggregate", h.handleGetAggregate)
		r.Get("/batches", h.handleGetBatches)
		r.Get("/batches/{id}", h.handleGetBatch)
		r.Get("/disclosures", h.handleGetDisclosures)
		r.Get("/disclosures/{request_id}", h.handleGetDisclosure)
		r.Get("/events", h.handleGetEvents)
		r.Post("/contributions", h.handleSubmitContribution)
		r.Post("/disclose", h.handleRequestDisclosure)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/transfer-ownership", h.handleTransferOwnership)
		r.Post("/providers", h.handleGrantProvider)
		r.Delete("/providers/{public_key}", h.handleRevokeProvider)
		r.Post("/cooldown", h.handleSetCooldown)
		r.Post("/pause", h.handlePause)
		r.Post("/unpause", h.handleUnpause)
		r.Post("/close-batch", h.handleCloseBatch)
	})

	r.Post("/oracle/callback", h.handleOracleCallback)
}

// consumeSequence enforces a strictly increasing per-actor sequence. A
// sequence is consumed even when the operation later fails, so retries must
// re-sign with a higher one.
func (h *MarketHandler) consumeSequence(actor protocol.Actor, seq uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.sequences[actor] {
		return fmt.Errorf("stale sequence %d for %s", seq, actor)
	}
	h.sequences[actor] = seq
	return nil
}

// persist writes the current snapshot through to the store. Failures are
// logged rather than surfaced: the in-memory market has already moved on.
func (h *MarketHandler) persist() {
	currentBatchGauge.Set(float64(h.market.CurrentBatch().ID))
	if err := h.store.SaveState(h.market.State()); err != nil {
		h.log.Error("persisting market state", "err", err)
		storeFailuresCounter.Inc()
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, protocol.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, protocol.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrBatchClosed):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrReplay):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrStaleState):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrProofInvalid):
		return http.StatusBadRequest
	case errors.Is(err, fhe.ErrUnknownHandle):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a market error to its HTTP status. The error text goes to
// the client verbatim so callers can distinguish rejection kinds.
func (h *MarketHandler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("market operation failed", "err", err)
	}
	if errors.Is(err, protocol.ErrRateLimited) {
		rateLimitedCounter.Inc()
	}
	http.Error(w, err.Error(), status)
}

func (h *MarketHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	providers := h.market.Providers()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}

	json.NewEncoder(w).Encode(&StatusResponse{
		InstanceID:   h.market.Config().InstanceID,
		Owner:        string(h.market.Owner()),
		Paused:       h.market.Paused(),
		Cooldown:     h.market.Cooldown(),
		CurrentBatch: h.market.CurrentBatch(),
		Providers:    names,
	})
}

func (h *MarketHandler) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	snapshot := h.market.AggregateSnapshot()
	json.NewEncoder(w).Encode(&snapshot)
}

func (h *MarketHandler) handleGetBatches(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.market.Batches())
}

func (h *MarketHandler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid batch id", http.StatusBadRequest)
		return
	}

	batch, ok := h.market.Batch(id)
	if !ok {
		http.Error(w, "unknown batch", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(&batch)
}

func (h *MarketHandler) handleGetDisclosures(w http.ResponseWriter, r *http.Request) {
	contexts := h.market.Disclosures()
	resp := make([]*DisclosureStatusResponse, len(contexts))
	for i, dc := range contexts {
		resp[i] = h.disclosureStatus(dc)
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *MarketHandler) handleGetDisclosure(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")

	dc, ok := h.market.Disclosure(requestID)
	if !ok {
		http.Error(w, "unknown disclosure request", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(h.disclosureStatus(dc))
}

func (h *MarketHandler) disclosureStatus(dc protocol.DecryptionContext) *DisclosureStatusResponse {
	resp := &DisclosureStatusResponse{
		RequestID: dc.RequestID,
		BatchID:   dc.BatchID,
		Processed: dc.Processed,
	}

	h.mu.Lock()
	if result, ok := h.results[dc.RequestID]; ok {
		values := result.Values
		resp.Values = &values
	}
	h.mu.Unlock()

	return resp
}

func (h *MarketHandler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.store.Events(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(&EventListResponse{Events: records})
}

func (h *MarketHandler) handleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[ContributionRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.market.SubmitContribution(r.Context(), actor, req.Deltas); err != nil {
		contributionsRejectedCounter.Inc()
		h.writeError(w, err)
		return
	}

	h.persist()
	contributionsAcceptedCounter.Inc()

	batch := h.market.CurrentBatch()
	h.log.Info("contribution accepted", "actor", actor, "batch", batch.ID)
	json.NewEncoder(w).Encode(&ContributionResponse{
		BatchID:   batch.ID,
		ItemCount: batch.ItemCount,
	})
}

func (h *MarketHandler) handleRequestDisclosure(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[DisclosureRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	requestID, err := h.market.RequestDisclosure(r.Context(), actor, req.BatchID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	disclosuresRequestedCounter.Inc()

	h.log.Info("disclosure requested", "actor", actor, "batch", req.BatchID, "requestID", requestID)
	json.NewEncoder(w).Encode(&DisclosureTicket{
		RequestID: requestID,
		BatchID:   req.BatchID,
	})
}

// handleOracleCallback ingests a decryption result from the oracle. The body
// is not a signed envelope: authenticity comes from the embedded proof,
// which the market verifies against the oracle's published signers.
func (h *MarketHandler) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	var req fhe.DecryptionCallback
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.market.CompleteDisclosure(req.RequestID, req.Cleartexts, req.Proof)
	if err != nil {
		if errors.Is(err, protocol.ErrStaleState) {
			staleCallbacksCounter.Inc()
		} else {
			callbacksRejectedCounter.Inc()
		}
		h.writeError(w, err)
		return
	}

	h.mu.Lock()
	h.results[result.RequestID] = result
	h.mu.Unlock()

	h.persist()
	disclosuresCompletedCounter.Inc()

	h.log.Info("disclosure completed", "requestID", result.RequestID, "batch", result.BatchID)
	json.NewEncoder(w).Encode(result)
}

func (h *MarketHandler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[TransferOwnershipRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.market.TransferOwnership(actor, protocol.Actor(req.NewOwner)); err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	adminActionsCounter.Inc()
	h.log.Info("ownership transferred", "from", actor, "to", req.NewOwner)
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}

func (h *MarketHandler) handleGrantProvider(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[ProviderGrantRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.market.AddProvider(actor, protocol.Actor(req.Provider)); err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	adminActionsCounter.Inc()
	h.log.Info("provider granted", "provider", req.Provider)
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}

func (h *MarketHandler) handleRevokeProvider(w http.ResponseWriter, r *http.Request) {
	urlKey := chi.URLParam(r, "public_key")

	var signedReq crypto.Signed[ProviderRevokeRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	if req.Provider != urlKey {
		http.Error(w, fmt.Sprintf("provider mismatch: URL says %s, body says %s", urlKey, req.Provider), http.StatusBadRequest)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.market.RemoveProvider(actor, protocol.Actor(req.Provider)); err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	adminActionsCounter.Inc()
	h.log.Info("provider revoked", "provider", req.Provider)
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}

func (h *MarketHandler) handleSetCooldown(w http.ResponseWriter, r *http.Request) {
	var signedReq crypto.Signed[CooldownRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	if err := h.market.SetCooldown(actor, req.Cooldown); err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	adminActionsCounter.Inc()
	h.log.Info("cooldown updated", "cooldown", req.Cooldown)
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}

func (h *MarketHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.handleAdminAction(w, r, ActionPause)
}

func (h *MarketHandler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.handleAdminAction(w, r, ActionUnpause)
}

func (h *MarketHandler) handleCloseBatch(w http.ResponseWriter, r *http.Request) {
	h.handleAdminAction(w, r, ActionCloseBatch)
}

func (h *MarketHandler) handleAdminAction(w http.ResponseWriter, r *http.Request, action AdminAction) {
	var signedReq crypto.Signed[AdminActionRequest]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	// A signed envelope authorizes exactly one action, so a captured pause
	// cannot be delivered to the unpause endpoint.
	if req.Action != action {
		http.Error(w, fmt.Sprintf("action mismatch: URL says %s, body says %s", action, req.Action), http.StatusBadRequest)
		return
	}

	actor := protocol.ActorFromPublicKey(signer)
	if err := h.consumeSequence(actor, req.Sequence); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	switch action {
	case ActionPause:
		err = h.market.Pause(actor)
	case ActionUnpause:
		err = h.market.Unpause(actor)
	case ActionCloseBatch:
		err = h.market.CloseCurrentBatch(actor)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.persist()
	adminActionsCounter.Inc()
	h.log.Info("admin action applied", "action", action, "actor", actor)
	json.NewEncoder(w).Encode(&AdminResponse{Success: true})
}
