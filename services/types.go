package services

import (
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// Every mutating market request travels as a crypto.Signed[T] JSON envelope.
// The recovered signer is the acting identity; no separate credential is
// carried. Each payload embeds a per-actor Sequence that must strictly
// increase, so a captured envelope cannot be delivered twice.

// AdminAction names the operation an AdminActionRequest authorizes. The
// handler rejects envelopes whose action does not match the endpoint they
// were delivered to, so a signed pause cannot be replayed as an unpause.
type AdminAction string

const (
	ActionPause      AdminAction = "pause"
	ActionUnpause    AdminAction = "unpause"
	ActionCloseBatch AdminAction = "close-batch"
)

// ContributionRequest carries one provider's encrypted metric deltas.
type ContributionRequest struct {
	Sequence uint64                 `json:"sequence"`
	Deltas   protocol.MetricHandles `json:"deltas"`
}

// DisclosureRequest asks the oracle to decrypt the aggregate for a closed batch.
type DisclosureRequest struct {
	Sequence uint64 `json:"sequence"`
	BatchID  uint64 `json:"batch_id"`
}

// TransferOwnershipRequest hands market ownership to a new actor.
type TransferOwnershipRequest struct {
	Sequence uint64 `json:"sequence"`
	NewOwner string `json:"new_owner"`
}

// ProviderGrantRequest authorizes an actor to submit contributions.
type ProviderGrantRequest struct {
	Sequence uint64 `json:"sequence"`
	Provider string `json:"provider"`
}

// ProviderRevokeRequest withdraws a provider authorization. The revoked key
// is carried in the payload as well as the URL so the signature covers it.
type ProviderRevokeRequest struct {
	Sequence uint64 `json:"sequence"`
	Provider string `json:"provider"`
}

// CooldownRequest changes the per-actor rate limit window.
type CooldownRequest struct {
	Sequence uint64        `json:"sequence"`
	Cooldown time.Duration `json:"cooldown,string"`
}

// AdminActionRequest carries a parameterless admin operation.
type AdminActionRequest struct {
	Sequence uint64      `json:"sequence"`
	Action   AdminAction `json:"action"`
}

// StatusResponse is the public view of the market.
type StatusResponse struct {
	InstanceID   string         `json:"instance_id"`
	Owner        string         `json:"owner"`
	Paused       bool           `json:"paused"`
	Cooldown     time.Duration  `json:"cooldown,string"`
	CurrentBatch protocol.Batch `json:"current_batch"`
	Providers    []string       `json:"providers"`
}

// ContributionResponse reports the batch a contribution landed in.
type ContributionResponse struct {
	BatchID   uint64 `json:"batch_id"`
	ItemCount uint64 `json:"item_count"`
}

// DisclosureTicket identifies an accepted disclosure request. The values
// arrive later through the oracle callback.
type DisclosureTicket struct {
	RequestID string `json:"request_id"`
	BatchID   uint64 `json:"batch_id"`
}

// DisclosureStatusResponse describes a disclosure request and, once the
// oracle callback has been processed, the decrypted metric values.
type DisclosureStatusResponse struct {
	RequestID string                 `json:"request_id"`
	BatchID   uint64                 `json:"batch_id"`
	Processed bool                   `json:"processed"`
	Values    *protocol.MetricValues `json:"values,omitempty"`
}

// AdminResponse confirms an admin operation.
type AdminResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EventListResponse returns a slice of the audit log, oldest first.
type EventListResponse struct {
	Events []*EventRecord `json:"events"`
}
