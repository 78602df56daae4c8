package protocol

import (
	"fmt"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// Actor identifies a caller by hex-encoded Ed25519 public key. The owner,
// providers, disclosure requesters, and the oracle signer are all actors.
type Actor string

// ActorFromPublicKey derives the actor identity for a public key.
func ActorFromPublicKey(pk crypto.PublicKey) Actor {
	return Actor(pk.String())
}

// ActionClass partitions rate limiting. The two classes are tracked
// independently per actor under one process-wide cooldown.
type ActionClass string

const (
	ActionSubmission ActionClass = "submission"
	ActionDisclosure ActionClass = "disclosure-request"
)

// NumMetrics is the number of market metrics carried by every contribution
// and every accumulator snapshot.
const NumMetrics = 5

// MetricHandles holds the five market metric ciphertexts in disclosure
// order: total volume, average-profit accumulator, player trade count,
// player trade volume, player trade profit. The same shape serves both
// provider deltas and aggregate snapshots.
type MetricHandles struct {
	TotalVolume fhe.Ciphertext `json:"total_volume"`
	AvgProfit   fhe.Ciphertext `json:"avg_profit"`
	TradeCount  fhe.Ciphertext `json:"trade_count"`
	TradeVolume fhe.Ciphertext `json:"trade_volume"`
	TradeProfit fhe.Ciphertext `json:"trade_profit"`
}

// Handles returns the five ciphertexts in disclosure order.
func (m MetricHandles) Handles() []fhe.Ciphertext {
	return []fhe.Ciphertext{m.TotalVolume, m.AvgProfit, m.TradeCount, m.TradeVolume, m.TradeProfit}
}

func metricHandlesFromSlice(handles []fhe.Ciphertext) MetricHandles {
	return MetricHandles{
		TotalVolume: handles[0],
		AvgProfit:   handles[1],
		TradeCount:  handles[2],
		TradeVolume: handles[3],
		TradeProfit: handles[4],
	}
}

// MetricValues holds the five decrypted metric values in disclosure order.
// AvgProfit accumulates a running sum of per-trade profit, never a computed
// average; disclosure consumers depend on the sum form.
type MetricValues struct {
	TotalVolume uint64 `json:"total_volume"`
	AvgProfit   uint64 `json:"avg_profit"`
	TradeCount  uint64 `json:"trade_count"`
	TradeVolume uint64 `json:"trade_volume"`
	TradeProfit uint64 `json:"trade_profit"`
}

// Encode renders the values as the fixed-width cleartext payload, in the
// same order the handles are submitted for decryption.
func (v MetricValues) Encode() []byte {
	return fhe.EncodeCleartexts([]uint64{v.TotalVolume, v.AvgProfit, v.TradeCount, v.TradeVolume, v.TradeProfit})
}

// DecodeMetricValues parses a fixed-width cleartext payload into the five
// metric values. The payload length must match exactly.
func DecodeMetricValues(payload []byte) (MetricValues, error) {
	values, err := fhe.DecodeCleartexts(payload, NumMetrics)
	if err != nil {
		return MetricValues{}, fmt.Errorf("decoding metric cleartexts: %w", err)
	}
	return MetricValues{
		TotalVolume: values[0],
		AvgProfit:   values[1],
		TradeCount:  values[2],
		TradeVolume: values[3],
		TradeProfit: values[4],
	}, nil
}

// Batch is one accumulation window. Identifiers increase from 1 and exactly
// one batch is open at any time; a closed batch never reopens and its
// ItemCount never changes again.
type Batch struct {
	ID        uint64 `json:"id"`
	Open      bool   `json:"open"`
	ItemCount uint64 `json:"item_count"`
}

// DecryptionContext is the persisted half of an in-flight disclosure. It is
// created when a request is accepted, flipped to Processed exactly once by a
// verified callback, and never deleted.
type DecryptionContext struct {
	RequestID string `json:"request_id"`
	BatchID   uint64 `json:"batch_id"`
	StateHash []byte `json:"state_hash"`
	Processed bool   `json:"processed"`
}

// DisclosureResult carries the decrypted values of a completed disclosure,
// tagged with the batch named in the originating request.
type DisclosureResult struct {
	RequestID string       `json:"request_id"`
	BatchID   uint64       `json:"batch_id"`
	Values    MetricValues `json:"values"`
}
