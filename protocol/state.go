package protocol

import (
	"fmt"
	"sort"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/fhe"
)

// MarketState is the full exportable state surface: everything a deployment
// must persist to survive a restart. The shape mirrors what the store layer
// writes through after each mutation.
type MarketState struct {
	Owner          Actor               `json:"owner"`
	Providers      []Actor             `json:"providers"`
	Paused         bool                `json:"paused"`
	Cooldown       time.Duration       `json:"cooldown"`
	CurrentBatchID uint64              `json:"current_batch_id"`
	Batches        []Batch             `json:"batches"`
	Aggregate      MetricHandles       `json:"aggregate"`
	Disclosures    []DecryptionContext `json:"disclosures"`
	RateLimits     []RateLimitRecord   `json:"rate_limits"`
}

// State exports a deep copy of the current market state.
func (m *Market) State() *MarketState {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	providers := m.access.Providers()
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	return &MarketState{
		Owner:          m.access.Owner(),
		Providers:      providers,
		Paused:         m.access.IsPaused(),
		Cooldown:       m.limits.Cooldown(),
		CurrentBatchID: m.batches.CurrentID(),
		Batches:        m.batches.All(),
		Aggregate:      m.aggregate.Snapshot(),
		Disclosures:    m.disclosures.Contexts(),
		RateLimits:     m.limits.Records(),
	}
}

// NewMarketFromState rehydrates a market from persisted state. Dynamic
// values (owner, cooldown, pause flag) come from the state, not the config;
// the config contributes the deployment identity and callback target. No
// boot events are published.
func NewMarketFromState(config MarketConfig, coproc fhe.Coprocessor, events *EventCoordinator, state *MarketState) (*Market, error) {
	if config.InstanceID == "" {
		return nil, fmt.Errorf("%w: instance id required", ErrInvalidConfiguration)
	}
	if state.Owner == "" {
		return nil, fmt.Errorf("%w: state has no owner", ErrInvalidConfiguration)
	}
	if state.Cooldown <= 0 {
		return nil, fmt.Errorf("%w: state cooldown must be positive", ErrInvalidConfiguration)
	}
	if events == nil {
		events = NewEventCoordinator()
	}

	batches, err := newBatchManagerFromState(state.CurrentBatchID, state.Batches)
	if err != nil {
		return nil, fmt.Errorf("restoring batches: %w", err)
	}

	m := &Market{
		config:      config,
		limits:      NewRateLimiter(state.Cooldown),
		batches:     batches,
		access:      NewAccessControl(state.Owner),
		aggregate:   NewEncryptedAggregateStore(coproc),
		disclosures: NewDecryptionCoordinator(coproc, config.InstanceID, config.CallbackURL),
		events:      events,
		now:         time.Now,
	}
	m.access.restore(state.Owner, state.Providers, state.Paused)
	m.limits.restore(state.RateLimits)
	m.aggregate.restore(state.Aggregate)
	m.disclosures.restore(state.Disclosures)

	return m, nil
}
