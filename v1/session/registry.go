package session

import (
	"context"
	"sync"
)

// Registry keys one session machine per identity id so concurrent
// requests from different subjects never read each other's role state.
// An entry is booted on first sight of a subject and reused for every
// later request carrying the same id; the Manager's fetch-once and
// stale-discard guards then hold per identity, and no request is ever
// evaluated against a session another request published.
type Registry struct {
	resolver RoleResolver
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	manager *Manager
	signals *Signals
}

// NewRegistry creates an empty registry. Machines it boots run until
// SignOut evicts them or Close tears the registry down.
func NewRegistry(resolver RoleResolver, opts Options) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		resolver: resolver,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*registryEntry),
	}
}

// For returns the session machine for the identity, booting one on
// first sight. The identity is published before the machine starts, so
// boot resolves the subject directly and a caller awaiting settlement
// can never observe an anonymous gap. Re-announcing a known subject (a
// token refresh) flows through the entry's signals and does not
// re-trigger the role fetch. A nil or empty identity has no session.
func (r *Registry) For(id *Identity) *Manager {
	if id == nil || id.ID == "" {
		return nil
	}

	r.mu.Lock()
	e, ok := r.entries[id.ID]
	if !ok {
		e = &registryEntry{
			manager: NewManager(r.resolver, r.opts),
			signals: NewSignals(),
		}
		r.entries[id.ID] = e
		e.signals.Publish(id)
		e.manager.Start(r.ctx, e.signals)
		r.mu.Unlock()
		return e.manager
	}
	r.mu.Unlock()

	e.signals.Publish(id)
	return e.manager
}

// SignOut ends the subject's session and evicts its entry. The next
// request carrying the same subject boots a fresh machine and fetches
// its role again.
func (r *Registry) SignOut(identityID string) {
	r.mu.Lock()
	e, ok := r.entries[identityID]
	if ok {
		delete(r.entries, identityID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	e.signals.Close()
	e.manager.Teardown()
}

// Close tears down every session machine. Used on service shutdown; the
// registry is not reusable afterwards.
func (r *Registry) Close() {
	r.cancel()
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.signals.Close()
		e.manager.Teardown()
	}
}
