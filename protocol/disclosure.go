package protocol

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/edipietro-895n3/Star-Trader-Fhe/crypto"
	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// DecryptionCoordinator runs the two-phase disclosure handshake. Phase one
// digests a snapshot of the aggregate, submits it to the oracle, and parks a
// DecryptionContext under the returned request id. Phase two is a separate
// entry point invoked at a time the oracle controls; the context table is
// the only state shared across the gap, so arbitrarily many operations may
// execute in between.
type DecryptionCoordinator struct {
	coproc      fhe.Coprocessor
	instanceID  string
	callbackURL string
	contexts    map[string]*DecryptionContext
}

// NewDecryptionCoordinator creates an empty coordinator for a deployment.
func NewDecryptionCoordinator(coproc fhe.Coprocessor, instanceID, callbackURL string) *DecryptionCoordinator {
	return &DecryptionCoordinator{
		coproc:      coproc,
		instanceID:  instanceID,
		callbackURL: callbackURL,
		contexts:    make(map[string]*DecryptionContext),
	}
}

// stateDigest binds a snapshot to this deployment. The callback recomputes
// it with the same inputs, so any intervening accumulation or handle change
// surfaces as a mismatch.
func (d *DecryptionCoordinator) stateDigest(snapshot MetricHandles) []byte {
	handles := snapshot.Handles()
	raw := make([][]byte, 0, len(handles))
	for _, h := range handles {
		raw = append(raw, h.Bytes())
	}
	return crypto.StateDigest(d.instanceID, raw...)
}

// Request runs phase one for an already validated batch reference: it
// submits the snapshot to the oracle and stores the pending context. The
// context is created only after the oracle accepts the request, keeping the
// operation all-or-nothing.
func (d *DecryptionCoordinator) Request(ctx context.Context, batchID uint64, snapshot MetricHandles) (*DecryptionContext, error) {
	digest := d.stateDigest(snapshot)

	requestID, err := d.coproc.RequestDecryption(ctx, snapshot.Handles(), d.callbackURL)
	if err != nil {
		return nil, fmt.Errorf("submitting decryption request: %w", err)
	}
	if _, exists := d.contexts[requestID]; exists {
		// Contexts are never deleted, so a reissued id would corrupt the table.
		return nil, fmt.Errorf("oracle reissued request id %s", requestID)
	}

	dc := &DecryptionContext{
		RequestID: requestID,
		BatchID:   batchID,
		StateHash: digest,
	}
	d.contexts[requestID] = dc

	copied := *dc
	return &copied, nil
}

// Complete runs phase two against a fresh snapshot of the aggregate. The
// order of the guards is load-bearing: replay before staleness before proof,
// and Processed flips only after every check has passed. A stale context is
// permanent; callers wanting the values must issue a fresh request.
func (d *DecryptionCoordinator) Complete(requestID string, cleartexts, proof []byte, snapshot MetricHandles) (*DisclosureResult, error) {
	dc, ok := d.contexts[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown disclosure request %s", ErrInvalidBatch, requestID)
	}
	if dc.Processed {
		return nil, fmt.Errorf("%w: request %s", ErrReplay, requestID)
	}

	if digest := d.stateDigest(snapshot); !bytes.Equal(digest, dc.StateHash) {
		return nil, fmt.Errorf("%w: request %s", ErrStaleState, requestID)
	}

	if err := d.coproc.CheckSignatures(requestID, cleartexts, proof); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	values, err := DecodeMetricValues(cleartexts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProofInvalid, err)
	}

	dc.Processed = true
	return &DisclosureResult{
		RequestID: requestID,
		BatchID:   dc.BatchID,
		Values:    values,
	}, nil
}

// Get returns the context stored under requestID by value.
func (d *DecryptionCoordinator) Get(requestID string) (DecryptionContext, bool) {
	dc, ok := d.contexts[requestID]
	if !ok {
		return DecryptionContext{}, false
	}
	return *dc, true
}

// Contexts exports the context table sorted by request id.
func (d *DecryptionCoordinator) Contexts() []DecryptionContext {
	out := make([]DecryptionContext, 0, len(d.contexts))
	for _, dc := range d.contexts {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}

func (d *DecryptionCoordinator) restore(contexts []DecryptionContext) {
	d.contexts = make(map[string]*DecryptionContext, len(contexts))
	for _, dc := range contexts {
		copied := dc
		d.contexts[dc.RequestID] = &copied
	}
}
