package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// MarketStore persists market state snapshots and the event audit log.
// SaveState is called write-through after every mutating operation, so a
// restarted node can resume from the last snapshot with in-flight
// disclosures intact.
type MarketStore interface {
	SaveState(state *protocol.MarketState) error
	// LoadState returns the last persisted snapshot, or nil when the store
	// holds none.
	LoadState() (*protocol.MarketState, error)
	AppendEvent(record *EventRecord) error
	// Events returns the most recent limit records, oldest first. A limit
	// of zero or less returns the whole log.
	Events(limit int) ([]*EventRecord, error)
	Close() error
}

// EventRecord is one persisted audit log entry.
type EventRecord struct {
	Kind    string          `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// NewEventRecord wraps a market event for persistence.
func NewEventRecord(ev protocol.Event, at time.Time) (*EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", ev.EventKind(), err)
	}
	return &EventRecord{
		Kind:    string(ev.EventKind()),
		Time:    at,
		Payload: payload,
	}, nil
}

// InMemoryStore implements MarketStore for testing without a database.
// The event recorder appends from its own goroutine, hence the mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	state  *protocol.MarketState
	events []*EventRecord
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SaveState stores the snapshot in memory.
func (s *InMemoryStore) SaveState(state *protocol.MarketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// LoadState returns the stored snapshot, or nil when none was saved.
func (s *InMemoryStore) LoadState() (*protocol.MarketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// AppendEvent appends a record to the in-memory log.
func (s *InMemoryStore) AppendEvent(record *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, record)
	return nil
}

// Events returns the most recent limit records, oldest first.
func (s *InMemoryStore) Events(limit int) ([]*EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	result := make([]*EventRecord, len(s.events)-start)
	copy(result, s.events[start:])
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
