// Package session tracks the authenticated identity and its resolved
// role across sign-in, sign-out and identity changes, and owns the role
// fetch against the backing store. The Manager is the only writer of the
// identity/role pair; everything else reads snapshots.
package session

import (
	"context"
	"sync"
)

// Identity is the opaque authenticated subject this core consumes from
// the external sign-in provider.
type Identity struct {
	ID    string
	Email string
}

// Event is a session-change notification. A nil Identity means the
// subject signed out.
type Event struct {
	Identity *Identity
}

// Source is the boundary to the external sign-in/out provider. This core
// never authenticates anyone; it only consumes the current session and
// change notifications.
type Source interface {
	// Current returns the session at boot time, or nil when anonymous.
	Current(ctx context.Context) (*Identity, error)
	// Changes delivers session-change events until the source is closed.
	Changes() <-chan Event
	// SignOut asks the provider to terminate the session.
	SignOut(ctx context.Context) error
}

// Signals is an in-process Source fed by whatever transport carries the
// provider's notifications (the bearer-identity middleware in this
// service). It implements Source.
type Signals struct {
	mu      sync.Mutex
	current *Identity
	ch      chan Event
	closed  bool
}

// NewSignals creates an empty Signals source (anonymous until published).
func NewSignals() *Signals {
	return &Signals{ch: make(chan Event, 1)}
}

// Current returns the most recently published identity.
func (s *Signals) Current(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// Changes returns the event stream.
func (s *Signals) Changes() <-chan Event {
	return s.ch
}

// Publish records a session change and notifies the consumer. Publishing
// the same identity again is legitimate (token refresh) and it is the
// consumer's job not to re-trigger role resolution for it. When the
// consumer is not keeping up, pending events are coalesced: the latest
// published state replaces the undelivered one, so a sign-out behind a
// burst of sign-ins is still the event that arrives.
func (s *Signals) Publish(id *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.current = id

	for {
		select {
		case s.ch <- Event{Identity: id}:
			return
		default:
		}
		// Slot holds an event nobody consumed; replace it with this one.
		select {
		case <-s.ch:
		default:
		}
	}
}

// SignOut publishes an anonymous session.
func (s *Signals) SignOut(ctx context.Context) error {
	s.Publish(nil)
	return nil
}

// Close stops the event stream.
func (s *Signals) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
