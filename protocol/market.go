package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// Market composes access control, rate limiting, the batch table, the
// encrypted aggregate, and the disclosure coordinator behind one serialized
// facade. Every mutating operation takes the state mutex, validates fully
// before touching state, and emits its structured notification; no caller
// ever observes a partially applied operation.
type Market struct {
	config MarketConfig

	stateMutex  sync.Mutex
	access      *AccessControl
	limits      *RateLimiter
	batches     *BatchManager
	aggregate   *EncryptedAggregateStore
	disclosures *DecryptionCoordinator
	events      *EventCoordinator

	now func() time.Time
}

// NewMarket boots a fresh market: batch 1 opens and the corresponding event
// is published. Pass a pre-built event coordinator to observe boot events,
// or nil to let the market create its own.
func NewMarket(config MarketConfig, coproc fhe.Coprocessor, events *EventCoordinator) (*Market, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = NewEventCoordinator()
	}

	m := &Market{
		config:      config,
		access:      NewAccessControl(config.Owner),
		limits:      NewRateLimiter(config.Cooldown),
		batches:     NewBatchManager(),
		aggregate:   NewEncryptedAggregateStore(coproc),
		disclosures: NewDecryptionCoordinator(coproc, config.InstanceID, config.CallbackURL),
		events:      events,
		now:         time.Now,
	}

	m.events.Publish(BatchOpenedEvent{BatchID: m.batches.CurrentID()})
	return m, nil
}

// SetClock replaces the market's time source.
// Only used in tests.
func (m *Market) SetClock(now func() time.Time) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.now = now
}

// Subscribe registers an event channel that lives until ctx is done.
func (m *Market) Subscribe(ctx context.Context) <-chan Event {
	return m.events.Subscribe(ctx)
}

// TransferOwnership reassigns the ownership singleton. Owner-only.
func (m *Market) TransferOwnership(actor, newOwner Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	previous, err := m.access.TransferOwnership(actor, newOwner)
	if err != nil {
		return err
	}
	m.events.Publish(RoleChangedEvent{Role: RoleOwner, Subject: newOwner, Granted: true, Previous: previous})
	return nil
}

// AddProvider grants provider capability. Owner-only; adding an existing
// provider is a silent no-op with no event.
func (m *Market) AddProvider(actor, provider Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	changed, err := m.access.AddProvider(actor, provider)
	if err != nil {
		return err
	}
	if changed {
		m.events.Publish(RoleChangedEvent{Role: RoleProvider, Subject: provider, Granted: true})
	}
	return nil
}

// RemoveProvider revokes provider capability. Owner-only; removing an
// absent provider is a silent no-op with no event.
func (m *Market) RemoveProvider(actor, provider Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	changed, err := m.access.RemoveProvider(actor, provider)
	if err != nil {
		return err
	}
	if changed {
		m.events.Publish(RoleChangedEvent{Role: RoleProvider, Subject: provider, Granted: false})
	}
	return nil
}

// SetCooldown replaces the process-wide action cooldown. Owner-only; zero
// and negative durations are rejected.
func (m *Market) SetCooldown(actor Actor, d time.Duration) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if err := m.access.RequireOwner(actor); err != nil {
		return err
	}
	if err := m.limits.SetCooldown(d); err != nil {
		return err
	}
	m.events.Publish(CooldownChangedEvent{Cooldown: d})
	return nil
}

// Pause halts submissions and disclosure requests. Owner-only.
func (m *Market) Pause(actor Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if err := m.access.Pause(actor); err != nil {
		return err
	}
	m.events.Publish(PauseChangedEvent{Paused: true})
	return nil
}

// Unpause resumes the market. Owner-only.
func (m *Market) Unpause(actor Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if err := m.access.Unpause(actor); err != nil {
		return err
	}
	m.events.Publish(PauseChangedEvent{Paused: false})
	return nil
}

// CloseCurrentBatch closes the open batch and opens its successor.
// Owner-only; administration stays available while paused.
func (m *Market) CloseCurrentBatch(actor Actor) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if err := m.access.RequireOwner(actor); err != nil {
		return err
	}
	closed, opened, err := m.batches.CloseCurrent()
	if err != nil {
		return err
	}
	m.events.Publish(BatchClosedEvent{BatchID: closed.ID, ItemCount: closed.ItemCount})
	m.events.Publish(BatchOpenedEvent{BatchID: opened.ID})
	return nil
}

// SubmitContribution folds a provider's five deltas into the aggregate and
// counts the contribution against the open batch. Provider-only, blocked
// while paused, and rate-limited under the submission class.
func (m *Market) SubmitContribution(ctx context.Context, actor Actor, deltas MetricHandles) error {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if err := m.access.RequireActive(); err != nil {
		return err
	}
	if err := m.access.RequireProvider(actor); err != nil {
		return err
	}
	now := m.now()
	if err := m.limits.Check(actor, ActionSubmission, now); err != nil {
		return err
	}
	// The open check runs before accumulation so a closed window is caught
	// while the aggregate is still untouched.
	if current := m.batches.Current(); !current.Open {
		return fmt.Errorf("%w: batch %d", ErrBatchClosed, current.ID)
	}

	if err := m.aggregate.Accumulate(ctx, deltas); err != nil {
		return err
	}

	batch, err := m.batches.RecordContribution()
	if err != nil {
		return err
	}
	if err := m.limits.CheckAndRecord(actor, ActionSubmission, now); err != nil {
		return err
	}
	m.events.Publish(ContributionRecordedEvent{BatchID: batch.ID, Provider: actor, ItemCount: batch.ItemCount})
	return nil
}

// RequestDisclosure starts phase one of disclosure for a closed batch
// strictly before the current one. Any actor may request; the actor is
// rate-limited under the disclosure class. Returns the oracle's request id.
func (m *Market) RequestDisclosure(ctx context.Context, actor Actor, batchID uint64) (string, error) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if batchID >= m.batches.CurrentID() {
		return "", fmt.Errorf("%w: batch %d is not before the current batch", ErrInvalidBatch, batchID)
	}
	batch, ok := m.batches.Get(batchID)
	if !ok {
		return "", fmt.Errorf("%w: batch %d does not exist", ErrInvalidBatch, batchID)
	}
	if batch.Open {
		return "", fmt.Errorf("%w: batch %d is still open", ErrInvalidBatch, batchID)
	}
	if err := m.access.RequireActive(); err != nil {
		return "", err
	}
	now := m.now()
	if err := m.limits.Check(actor, ActionDisclosure, now); err != nil {
		return "", err
	}

	// The snapshot must reference stored ciphertexts even when no
	// contribution ever initialized the aggregate; an untouched market
	// discloses five zeros.
	if err := m.aggregate.EnsureInitialized(ctx); err != nil {
		return "", err
	}
	dc, err := m.disclosures.Request(ctx, batchID, m.aggregate.Snapshot())
	if err != nil {
		return "", err
	}

	if err := m.limits.CheckAndRecord(actor, ActionDisclosure, now); err != nil {
		return "", err
	}
	m.events.Publish(DisclosureRequestedEvent{RequestID: dc.RequestID, BatchID: dc.BatchID, StateHash: dc.StateHash})
	return dc.RequestID, nil
}

// CompleteDisclosure is the oracle's callback entry point: phase two of
// disclosure. It runs even while paused so in-flight oracle responses are
// not lost to an administrative halt. On success the decrypted values are
// returned tagged with the originating batch.
func (m *Market) CompleteDisclosure(requestID string, cleartexts, proof []byte) (*DisclosureResult, error) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	result, err := m.disclosures.Complete(requestID, cleartexts, proof, m.aggregate.Snapshot())
	if err != nil {
		return nil, err
	}
	m.events.Publish(DisclosureCompletedEvent{RequestID: result.RequestID, BatchID: result.BatchID, Values: result.Values})
	return result, nil
}

// Owner returns the current administrative actor.
func (m *Market) Owner() Actor {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.access.Owner()
}

// IsProvider reports whether p holds provider capability.
func (m *Market) IsProvider(p Actor) bool {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.access.IsProvider(p)
}

// Providers returns the provider set sorted by actor.
func (m *Market) Providers() []Actor {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	providers := m.access.Providers()
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Paused reports whether the market is halted.
func (m *Market) Paused() bool {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.access.IsPaused()
}

// Cooldown returns the active cooldown duration.
func (m *Market) Cooldown() time.Duration {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.limits.Cooldown()
}

// CurrentBatch returns the open batch.
func (m *Market) CurrentBatch() Batch {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.batches.Current()
}

// Batch returns the batch with the given identifier.
func (m *Market) Batch(id uint64) (Batch, bool) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.batches.Get(id)
}

// Batches returns the batch table ordered by identifier.
func (m *Market) Batches() []Batch {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.batches.All()
}

// AggregateSnapshot returns the five accumulator handles by value.
func (m *Market) AggregateSnapshot() MetricHandles {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.aggregate.Snapshot()
}

// Disclosure returns the stored context for a request id.
func (m *Market) Disclosure(requestID string) (DecryptionContext, bool) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.disclosures.Get(requestID)
}

// Disclosures returns the context table sorted by request id.
func (m *Market) Disclosures() []DecryptionContext {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	return m.disclosures.Contexts()
}

// Config returns the boot configuration.
func (m *Market) Config() MarketConfig {
	return m.config
}
