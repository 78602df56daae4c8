package protocol

import (
	"context"
	"slices"
	"sync"
	"time"
)

type EventKind string

const (
	KindRoleChanged          EventKind = "role-changed"
	KindPauseChanged         EventKind = "pause-changed"
	KindCooldownChanged      EventKind = "cooldown-changed"
	KindBatchOpened          EventKind = "batch-opened"
	KindBatchClosed          EventKind = "batch-closed"
	KindContributionRecorded EventKind = "contribution-recorded"
	KindDisclosureRequested  EventKind = "disclosure-requested"
	KindDisclosureCompleted  EventKind = "disclosure-completed"
)

const (
	RoleOwner    = "owner"
	RoleProvider = "provider"
)

// Event is a structured notification emitted by every mutating market
// operation. Events exist for external observability and indexing; nothing
// in the core consumes them.
type Event interface {
	EventKind() EventKind
}

type RoleChangedEvent struct {
	Role    string `json:"role"`
	Subject Actor  `json:"subject"`
	Granted bool   `json:"granted"`
	// Previous is set only for ownership transfers.
	Previous Actor `json:"previous,omitempty"`
}

func (RoleChangedEvent) EventKind() EventKind { return KindRoleChanged }

type PauseChangedEvent struct {
	Paused bool `json:"paused"`
}

func (PauseChangedEvent) EventKind() EventKind { return KindPauseChanged }

type CooldownChangedEvent struct {
	Cooldown time.Duration `json:"cooldown"`
}

func (CooldownChangedEvent) EventKind() EventKind { return KindCooldownChanged }

type BatchOpenedEvent struct {
	BatchID uint64 `json:"batch_id"`
}

func (BatchOpenedEvent) EventKind() EventKind { return KindBatchOpened }

type BatchClosedEvent struct {
	BatchID   uint64 `json:"batch_id"`
	ItemCount uint64 `json:"item_count"`
}

func (BatchClosedEvent) EventKind() EventKind { return KindBatchClosed }

type ContributionRecordedEvent struct {
	BatchID   uint64 `json:"batch_id"`
	Provider  Actor  `json:"provider"`
	ItemCount uint64 `json:"item_count"`
}

func (ContributionRecordedEvent) EventKind() EventKind { return KindContributionRecorded }

type DisclosureRequestedEvent struct {
	RequestID string `json:"request_id"`
	BatchID   uint64 `json:"batch_id"`
	StateHash []byte `json:"state_hash"`
}

func (DisclosureRequestedEvent) EventKind() EventKind { return KindDisclosureRequested }

type DisclosureCompletedEvent struct {
	RequestID string       `json:"request_id"`
	BatchID   uint64       `json:"batch_id"`
	Values    MetricValues `json:"values"`
}

func (DisclosureCompletedEvent) EventKind() EventKind { return KindDisclosureCompleted }

type eventSubscriber struct {
	ctx context.Context
	ch  chan Event
}

// EventCoordinator fans notifications out to subscriber channels. Delivery
// is best-effort: a subscriber that stops draining loses events rather than
// blocking the publishing operation.
type EventCoordinator struct {
	mu          sync.Mutex
	subscribers []eventSubscriber
}

// NewEventCoordinator creates an empty coordinator.
func NewEventCoordinator() *EventCoordinator {
	return &EventCoordinator{
		subscribers: make([]eventSubscriber, 0),
	}
}

// Subscribe registers a channel that receives events until ctx is done. The
// channel is closed once cancellation is observed.
func (c *EventCoordinator) Subscribe(ctx context.Context) <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, 100)
	c.subscribers = append(c.subscribers, eventSubscriber{ctx, ch})
	return ch
}

// Publish delivers ev to every live subscriber and drops subscribers whose
// context has ended.
func (c *EventCoordinator) Publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	toRemove := []int{}
	for i, sub := range c.subscribers {
		select {
		case <-sub.ctx.Done():
			close(sub.ch)
			toRemove = append(toRemove, i)
		case sub.ch <- ev:
		default:
			// Skip if channel is full
		}
	}

	slices.Reverse(toRemove)
	for _, i := range toRemove {
		c.subscribers = slices.Delete(c.subscribers, i, i+1)
	}
}
