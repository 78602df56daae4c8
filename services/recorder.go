package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/edipietro-895n3/Star-Trader-Fhe/protocol"
)

// EventRecorder appends market events to the audit log as they happen.
type EventRecorder struct {
	store MarketStore
	log   *slog.Logger
}

// NewEventRecorder creates a recorder writing to the given store.
func NewEventRecorder(store MarketStore, log *slog.Logger) *EventRecorder {
	return &EventRecorder{store: store, log: log}
}

// Run subscribes to the market's event stream and persists records until
// the context is canceled. Run from its own goroutine.
func (r *EventRecorder) Run(ctx context.Context, market *protocol.Market) {
	events := market.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			record, err := NewEventRecord(ev, time.Now().UTC())
			if err != nil {
				r.log.Error("encoding event", "kind", ev.EventKind(), "err", err)
				continue
			}
			if err := r.store.AppendEvent(record); err != nil {
				r.log.Error("appending event", "kind", ev.EventKind(), "err", err)
			}
		}
	}
}
