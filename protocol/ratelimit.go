package protocol

import (
	"fmt"
	"sort"
	"time"
)

type limitKey struct {
	actor Actor
	class ActionClass
}

// RateLimitRecord is the exportable form of one actor's last action in one
// class, used for persistence rehydration.
type RateLimitRecord struct {
	Actor Actor       `json:"actor"`
	Class ActionClass `json:"class"`
	Last  time.Time   `json:"last"`
}

// RateLimiter enforces a single process-wide cooldown per actor and action
// class. Submission and disclosure requests are tracked independently, and
// no operation ever touches another actor's record.
type RateLimiter struct {
	cooldown time.Duration
	last     map[limitKey]time.Time
}

// NewRateLimiter creates a limiter with the given cooldown. The cooldown
// must already be validated as positive.
func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{
		cooldown: cooldown,
		last:     make(map[limitKey]time.Time),
	}
}

// Cooldown returns the active cooldown duration.
func (r *RateLimiter) Cooldown() time.Duration {
	return r.cooldown
}

// SetCooldown replaces the process-wide cooldown. Zero and negative values
// are rejected; existing records keep their stamps and are judged against
// the new duration from now on.
func (r *RateLimiter) SetCooldown(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: cooldown must be positive", ErrInvalidConfiguration)
	}
	r.cooldown = d
	return nil
}

// Check fails while the actor is still inside the cooldown window for the
// class. It never records anything.
func (r *RateLimiter) Check(actor Actor, class ActionClass, now time.Time) error {
	if last, ok := r.last[limitKey{actor, class}]; ok && now.Before(last.Add(r.cooldown)) {
		return fmt.Errorf("%w: %s for %s until %s", ErrRateLimited, class, actor, last.Add(r.cooldown).Format(time.RFC3339))
	}
	return nil
}

// CheckAndRecord runs Check and, on success, stamps now as the actor's last
// action in the class.
func (r *RateLimiter) CheckAndRecord(actor Actor, class ActionClass, now time.Time) error {
	if err := r.Check(actor, class, now); err != nil {
		return err
	}
	r.last[limitKey{actor, class}] = now
	return nil
}

// Records exports all stamps sorted by actor then class.
func (r *RateLimiter) Records() []RateLimitRecord {
	out := make([]RateLimitRecord, 0, len(r.last))
	for key, last := range r.last {
		out = append(out, RateLimitRecord{Actor: key.actor, Class: key.class, Last: last})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Actor != out[j].Actor {
			return out[i].Actor < out[j].Actor
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func (r *RateLimiter) restore(records []RateLimitRecord) {
	r.last = make(map[limitKey]time.Time, len(records))
	for _, rec := range records {
		r.last[limitKey{rec.Actor, rec.Class}] = rec.Last
	}
}
