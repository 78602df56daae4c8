package protocol

import (
	"context"
	"fmt"

	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// EncryptedAggregateStore owns the five process-wide running accumulators.
// The aggregate is shared across batches: closing a batch freezes only the
// count association, never the underlying ciphertexts. The store never sees
// plaintext; the only mutation is homomorphic addition through the
// coprocessor, and new handle sets are committed all-or-nothing.
type EncryptedAggregateStore struct {
	coproc  fhe.Coprocessor
	handles MetricHandles
}

// NewEncryptedAggregateStore creates an uninitialized aggregate. The
// accumulators are set to encrypted zero lazily, on first use.
func NewEncryptedAggregateStore(coproc fhe.Coprocessor) *EncryptedAggregateStore {
	return &EncryptedAggregateStore{coproc: coproc}
}

// Snapshot returns the five accumulator handles by value. Both the
// disclosure request payload and the later callback comparison are built
// from snapshots, never from live state.
func (s *EncryptedAggregateStore) Snapshot() MetricHandles {
	return s.handles
}

// EnsureInitialized sets any accumulator that does not yet reference stored
// data to encrypted zero. A second call finds every handle initialized and
// changes nothing.
func (s *EncryptedAggregateStore) EnsureInitialized(ctx context.Context) error {
	handles, err := s.initializedHandles(ctx)
	if err != nil {
		return err
	}
	s.handles = metricHandlesFromSlice(handles)
	return nil
}

// Accumulate folds the five deltas into the accumulators. All five sums are
// computed before any handle is replaced, so a failed addition leaves the
// aggregate untouched.
func (s *EncryptedAggregateStore) Accumulate(ctx context.Context, deltas MetricHandles) error {
	acc, err := s.initializedHandles(ctx)
	if err != nil {
		return err
	}

	ds := deltas.Handles()
	for i := range acc {
		sum, err := s.coproc.Add(ctx, acc[i], ds[i])
		if err != nil {
			return fmt.Errorf("accumulating metric %d: %w", i, err)
		}
		acc[i] = sum
	}

	s.handles = metricHandlesFromSlice(acc)
	return nil
}

// initializedHandles returns a working copy of the accumulators with every
// uninitialized handle replaced by fresh encrypted zero. The store itself is
// not modified.
func (s *EncryptedAggregateStore) initializedHandles(ctx context.Context) ([]fhe.Ciphertext, error) {
	handles := s.handles.Handles()
	for i, handle := range handles {
		initialized, err := s.coproc.IsInitialized(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("probing metric %d: %w", i, err)
		}
		if initialized {
			continue
		}
		zero, err := s.coproc.Encrypt(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("initializing metric %d: %w", i, err)
		}
		handles[i] = zero
	}
	return handles, nil
}

func (s *EncryptedAggregateStore) restore(handles MetricHandles) {
	s.handles = handles
}
