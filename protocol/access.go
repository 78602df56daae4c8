package protocol

import "fmt"

// AccessControl holds the owner singleton, the provider set, and the halt
// flag. All privileged market operations route their capability checks
// through here; nothing else inspects roles.
type AccessControl struct {
	owner     Actor
	providers map[Actor]bool
	paused    bool
}

// NewAccessControl creates the role state with its initial owner.
func NewAccessControl(owner Actor) *AccessControl {
	return &AccessControl{
		owner:     owner,
		providers: make(map[Actor]bool),
	}
}

// Owner returns the current administrative actor.
func (a *AccessControl) Owner() Actor {
	return a.owner
}

// IsProvider reports whether p is an authorized data provider.
func (a *AccessControl) IsProvider(p Actor) bool {
	return a.providers[p]
}

// Providers returns the provider set in unspecified order.
func (a *AccessControl) Providers() []Actor {
	out := make([]Actor, 0, len(a.providers))
	for p := range a.providers {
		out = append(out, p)
	}
	return out
}

// IsPaused reports whether the market is halted.
func (a *AccessControl) IsPaused() bool {
	return a.paused
}

// RequireOwner fails unless actor holds the ownership singleton.
func (a *AccessControl) RequireOwner(actor Actor) error {
	if actor != a.owner {
		return fmt.Errorf("%w: owner required", ErrUnauthorized)
	}
	return nil
}

// RequireProvider fails unless actor is an authorized provider.
func (a *AccessControl) RequireProvider(actor Actor) error {
	if !a.providers[actor] {
		return fmt.Errorf("%w: provider required", ErrUnauthorized)
	}
	return nil
}

// RequireActive fails while the market is halted.
func (a *AccessControl) RequireActive() error {
	if a.paused {
		return ErrPaused
	}
	return nil
}

// TransferOwnership reassigns the ownership singleton and returns the
// previous owner. Owner-only.
func (a *AccessControl) TransferOwnership(actor, newOwner Actor) (Actor, error) {
	if err := a.RequireOwner(actor); err != nil {
		return "", err
	}
	if newOwner == "" {
		return "", fmt.Errorf("%w: empty owner", ErrInvalidConfiguration)
	}
	previous := a.owner
	a.owner = newOwner
	return previous, nil
}

// AddProvider grants provider capability. Owner-only and idempotent: adding
// an existing provider changes nothing and reports false.
func (a *AccessControl) AddProvider(actor, provider Actor) (bool, error) {
	if err := a.RequireOwner(actor); err != nil {
		return false, err
	}
	if provider == "" {
		return false, fmt.Errorf("%w: empty provider", ErrInvalidConfiguration)
	}
	if a.providers[provider] {
		return false, nil
	}
	a.providers[provider] = true
	return true, nil
}

// RemoveProvider revokes provider capability. Owner-only and idempotent:
// removing an absent provider changes nothing and reports false.
func (a *AccessControl) RemoveProvider(actor, provider Actor) (bool, error) {
	if err := a.RequireOwner(actor); err != nil {
		return false, err
	}
	if !a.providers[provider] {
		return false, nil
	}
	delete(a.providers, provider)
	return true, nil
}

// Pause halts the market. Owner-only; fails when already halted.
func (a *AccessControl) Pause(actor Actor) error {
	if err := a.RequireOwner(actor); err != nil {
		return err
	}
	if a.paused {
		return fmt.Errorf("%w: already paused", ErrPaused)
	}
	a.paused = true
	return nil
}

// Unpause resumes the market. Owner-only; fails when not halted.
func (a *AccessControl) Unpause(actor Actor) error {
	if err := a.RequireOwner(actor); err != nil {
		return err
	}
	if !a.paused {
		return ErrNotPaused
	}
	a.paused = false
	return nil
}

func (a *AccessControl) restore(owner Actor, providers []Actor, paused bool) {
	a.owner = owner
	a.paused = paused
	a.providers = make(map[Actor]bool, len(providers))
	for _, p := range providers {
		a.providers[p] = true
	}
}
