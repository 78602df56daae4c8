package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessControl_OwnerGates(t *testing.T) {
	ac := NewAccessControl("owner-1")

	_, err := ac.TransferOwnership("stranger", "stranger")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = ac.AddProvider("stranger", "provider-1")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = ac.RemoveProvider("stranger", "provider-1")
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, ac.Pause("stranger"), ErrUnauthorized)
	require.ErrorIs(t, ac.Unpause("stranger"), ErrUnauthorized)
}

func TestAccessControl_TransferOwnership(t *testing.T) {
	ac := NewAccessControl("owner-1")

	previous, err := ac.TransferOwnership("owner-1", "owner-2")
	require.NoError(t, err)
	require.Equal(t, Actor("owner-1"), previous)
	require.Equal(t, Actor("owner-2"), ac.Owner())

	// The singleton moved: the old owner holds nothing now.
	_, err = ac.AddProvider("owner-1", "provider-1")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = ac.AddProvider("owner-2", "provider-1")
	require.NoError(t, err)
}

func TestAccessControl_ProviderIdempotence(t *testing.T) {
	ac := NewAccessControl("owner-1")

	changed, err := ac.AddProvider("owner-1", "provider-1")
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, ac.IsProvider("provider-1"))

	// Adding again is a no-op, not an error.
	changed, err = ac.AddProvider("owner-1", "provider-1")
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = ac.RemoveProvider("owner-1", "provider-1")
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, ac.IsProvider("provider-1"))

	changed, err = ac.RemoveProvider("owner-1", "provider-1")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestAccessControl_PauseLifecycle(t *testing.T) {
	ac := NewAccessControl("owner-1")

	require.ErrorIs(t, ac.Unpause("owner-1"), ErrNotPaused)
	require.NoError(t, ac.RequireActive())

	require.NoError(t, ac.Pause("owner-1"))
	require.True(t, ac.IsPaused())
	require.ErrorIs(t, ac.RequireActive(), ErrPaused)
	require.ErrorIs(t, ac.Pause("owner-1"), ErrPaused)

	require.NoError(t, ac.Unpause("owner-1"))
	require.False(t, ac.IsPaused())
	require.NoError(t, ac.RequireActive())
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	t0 := time.Unix(1700000000, 0)

	require.NoError(t, rl.CheckAndRecord("actor-1", ActionSubmission, t0))

	// Inside the window, including the last instant before expiry.
	require.ErrorIs(t, rl.Check("actor-1", ActionSubmission, t0.Add(time.Second)), ErrRateLimited)
	require.ErrorIs(t, rl.Check("actor-1", ActionSubmission, t0.Add(time.Minute-time.Nanosecond)), ErrRateLimited)

	// The boundary instant is allowed: now == last + cooldown.
	require.NoError(t, rl.CheckAndRecord("actor-1", ActionSubmission, t0.Add(time.Minute)))
}

func TestRateLimiter_ClassesIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	t0 := time.Unix(1700000000, 0)

	require.NoError(t, rl.CheckAndRecord("actor-1", ActionSubmission, t0))
	require.NoError(t, rl.CheckAndRecord("actor-1", ActionDisclosure, t0))

	require.ErrorIs(t, rl.Check("actor-1", ActionSubmission, t0), ErrRateLimited)
	require.ErrorIs(t, rl.Check("actor-1", ActionDisclosure, t0), ErrRateLimited)
}

func TestRateLimiter_ActorsIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	t0 := time.Unix(1700000000, 0)

	require.NoError(t, rl.CheckAndRecord("actor-1", ActionSubmission, t0))
	require.NoError(t, rl.CheckAndRecord("actor-2", ActionSubmission, t0))
	require.ErrorIs(t, rl.Check("actor-1", ActionSubmission, t0), ErrRateLimited)
}

func TestRateLimiter_SetCooldown(t *testing.T) {
	rl := NewRateLimiter(time.Minute)

	require.ErrorIs(t, rl.SetCooldown(0), ErrInvalidConfiguration)
	require.ErrorIs(t, rl.SetCooldown(-time.Second), ErrInvalidConfiguration)
	require.Equal(t, time.Minute, rl.Cooldown())

	// Existing stamps are judged against the new duration.
	t0 := time.Unix(1700000000, 0)
	require.NoError(t, rl.CheckAndRecord("actor-1", ActionSubmission, t0))
	require.NoError(t, rl.SetCooldown(time.Second))
	require.NoError(t, rl.Check("actor-1", ActionSubmission, t0.Add(2*time.Second)))
}

func TestBatchManager_Lifecycle(t *testing.T) {
	bm := NewBatchManager()

	require.Equal(t, uint64(1), bm.CurrentID())
	require.Equal(t, Batch{ID: 1, Open: true, ItemCount: 0}, bm.Current())

	updated, err := bm.RecordContribution()
	require.NoError(t, err)
	require.Equal(t, uint64(1), updated.ItemCount)

	closed, opened, err := bm.CloseCurrent()
	require.NoError(t, err)
	require.Equal(t, Batch{ID: 1, Open: false, ItemCount: 1}, closed)
	require.Equal(t, Batch{ID: 2, Open: true, ItemCount: 0}, opened)
	require.Equal(t, uint64(2), bm.CurrentID())

	// The closed batch is frozen.
	_, err = bm.RecordContribution()
	require.NoError(t, err)
	frozen, ok := bm.Get(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), frozen.ItemCount)
	require.False(t, frozen.Open)
}

func TestBatchManager_Monotonicity(t *testing.T) {
	bm := NewBatchManager()

	for i := 0; i < 5; i++ {
		_, _, err := bm.CloseCurrent()
		require.NoError(t, err)
	}
	require.Equal(t, uint64(6), bm.CurrentID())

	all := bm.All()
	require.Len(t, all, 6)
	openCount := 0
	for i, batch := range all {
		require.Equal(t, uint64(i+1), batch.ID)
		if batch.Open {
			openCount++
		}
	}
	require.Equal(t, 1, openCount)
}

func TestBatchManager_RestoreValidation(t *testing.T) {
	// Two open batches violate the single-open invariant.
	_, err := newBatchManagerFromState(2, []Batch{
		{ID: 1, Open: true},
		{ID: 2, Open: true},
	})
	require.Error(t, err)

	// The open batch must be the current one.
	_, err = newBatchManagerFromState(2, []Batch{
		{ID: 1, Open: true},
		{ID: 2, Open: false},
	})
	require.Error(t, err)

	bm, err := newBatchManagerFromState(2, []Batch{
		{ID: 1, Open: false, ItemCount: 3},
		{ID: 2, Open: true},
	})
	require.NoError(t, err)
	require.Equal(t, Batch{ID: 2, Open: true}, bm.Current())
}

func TestEventCoordinator_FanOut(t *testing.T) {
	events := NewEventCoordinator()
	ctx := context.Background()

	ch1 := events.Subscribe(ctx)
	ch2 := events.Subscribe(ctx)

	events.Publish(BatchOpenedEvent{BatchID: 1})
	events.Publish(BatchClosedEvent{BatchID: 1, ItemCount: 4})

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		require.Equal(t, KindBatchOpened, ev.EventKind())
		ev = <-ch
		require.Equal(t, KindBatchClosed, ev.EventKind())
		require.Equal(t, uint64(4), ev.(BatchClosedEvent).ItemCount)
	}
}

func TestEventCoordinator_DropOnFull(t *testing.T) {
	events := NewEventCoordinator()
	ch := events.Subscribe(context.Background())

	// Publishing past the buffer must not block the publisher.
	for i := 0; i < 150; i++ {
		events.Publish(BatchOpenedEvent{BatchID: uint64(i)})
	}
	require.Equal(t, 100, len(ch))
}

func TestEventCoordinator_RemovesCanceledSubscribers(t *testing.T) {
	events := NewEventCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	events.Subscribe(ctx)

	cancel()
	require.Eventually(t, func() bool {
		events.Publish(PauseChangedEvent{Paused: true})
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.subscribers) == 0
	}, time.Second, 5*time.Millisecond)
}
