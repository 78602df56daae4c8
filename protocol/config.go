package protocol

import (
	"fmt"
	"time"
)

// MarketConfig carries the boot parameters of a market instance.
type MarketConfig struct {
	// InstanceID distinguishes this deployment inside state digests. A proof
	// captured from one instance cannot replay against another even when the
	// ciphertext encodings coincide.
	InstanceID string `json:"instance_id"`

	// Owner is the administrative actor at boot. Ownership is a transferable
	// singleton.
	Owner Actor `json:"owner"`

	// Cooldown is the initial per-actor, per-action-class cooldown. Must be
	// positive; the owner can change it at runtime but never to zero.
	Cooldown time.Duration `json:"cooldown,string"`

	// CallbackURL is handed to the oracle with every decryption request and
	// names where fulfilled results are delivered.
	CallbackURL string `json:"callback_url"`
}

// Validate reports the first invalid boot parameter.
func (c *MarketConfig) Validate() error {
	if c.InstanceID == "" {
		return fmt.Errorf("%w: instance id required", ErrInvalidConfiguration)
	}
	if c.Owner == "" {
		return fmt.Errorf("%w: owner required", ErrInvalidConfiguration)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("%w: cooldown must be positive", ErrInvalidConfiguration)
	}
	return nil
}
