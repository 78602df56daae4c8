package protocol

import (
	"fmt"
	"sort"
)

// BatchManager owns the batch table and the current-batch pointer. Batch 1
// opens at initialization; every close opens the successor, so exactly one
// batch is open at all times and identifiers grow without gaps.
type BatchManager struct {
	currentID uint64
	batches   map[uint64]*Batch
}

// NewBatchManager creates the table with batch 1 open and empty.
func NewBatchManager() *BatchManager {
	return &BatchManager{
		currentID: 1,
		batches: map[uint64]*Batch{
			1: {ID: 1, Open: true},
		},
	}
}

// CurrentID returns the identifier of the open batch.
func (b *BatchManager) CurrentID() uint64 {
	return b.currentID
}

// Current returns the open batch by value.
func (b *BatchManager) Current() Batch {
	return *b.batches[b.currentID]
}

// Get returns the batch with the given identifier.
func (b *BatchManager) Get(id uint64) (Batch, bool) {
	batch, ok := b.batches[id]
	if !ok {
		return Batch{}, false
	}
	return *batch, true
}

// RecordContribution increments the open batch's item count and returns the
// updated batch. The closed-batch check is defensive: the current batch is
// open by invariant, and accumulation must never land in a closed window.
func (b *BatchManager) RecordContribution() (Batch, error) {
	current := b.batches[b.currentID]
	if !current.Open {
		return Batch{}, fmt.Errorf("%w: batch %d", ErrBatchClosed, current.ID)
	}
	current.ItemCount++
	return *current, nil
}

// CloseCurrent closes the open batch and opens its successor, returning
// both. Closed is terminal: the batch's item count never changes again.
func (b *BatchManager) CloseCurrent() (closed, opened Batch, err error) {
	current := b.batches[b.currentID]
	if !current.Open {
		return Batch{}, Batch{}, fmt.Errorf("%w: batch %d", ErrBatchClosed, current.ID)
	}
	current.Open = false

	b.currentID++
	next := &Batch{ID: b.currentID, Open: true}
	b.batches[b.currentID] = next

	return *current, *next, nil
}

// All exports the batch table ordered by identifier.
func (b *BatchManager) All() []Batch {
	out := make([]Batch, 0, len(b.batches))
	for _, batch := range b.batches {
		out = append(out, *batch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func newBatchManagerFromState(currentID uint64, batches []Batch) (*BatchManager, error) {
	if currentID < 1 {
		return nil, fmt.Errorf("current batch id %d out of range", currentID)
	}

	table := make(map[uint64]*Batch, len(batches))
	openCount := 0
	for _, batch := range batches {
		if batch.ID < 1 {
			return nil, fmt.Errorf("batch id %d out of range", batch.ID)
		}
		if batch.Open {
			openCount++
			if batch.ID != currentID {
				return nil, fmt.Errorf("open batch %d is not the current batch %d", batch.ID, currentID)
			}
		}
		copied := batch
		table[batch.ID] = &copied
	}
	if openCount != 1 {
		return nil, fmt.Errorf("exactly one batch must be open, found %d", openCount)
	}
	if _, ok := table[currentID]; !ok {
		return nil, fmt.Errorf("current batch %d missing from table", currentID)
	}

	return &BatchManager{currentID: currentID, batches: table}, nil
}
