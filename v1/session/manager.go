package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rcms-care/portal-backend/monitoring"
	"github.com/rcms-care/portal-backend/v1/models"
)

// State is the lifecycle position of the session.
type State string

const (
	StateUnknown       State = "UNKNOWN"
	StateAuthResolving State = "AUTH_RESOLVING"
	StateAnonymous     State = "ANONYMOUS"
	StateRoleResolving State = "ROLE_RESOLVING"
	StateRoleKnown     State = "ROLE_KNOWN"
	StateRoleUnknown   State = "ROLE_UNKNOWN"
)

// DefaultAuthResolveTimeout bounds boot-time auth resolution.
const DefaultAuthResolveTimeout = 3 * time.Second

// Snapshot is a consistent read of the session at one instant.
type Snapshot struct {
	Identity    *Identity
	Roles       []models.Role
	State       State
	AuthLoading bool
	RoleLoading bool
}

// Loading is the composed flag: the only safe "may I make an
// authorization decision yet" signal. Consumers must never use the
// sub-flags alone for that question.
func (s Snapshot) Loading() bool {
	return s.AuthLoading || s.RoleLoading
}

// PrimaryRole returns the first resolved role, or empty when none.
func (s Snapshot) PrimaryRole() models.Role {
	if len(s.Roles) == 0 {
		return ""
	}
	return s.Roles[0]
}

// HasRole reports whether any resolved role matches required. required
// is canonicalized here, so callers may pass boundary-cased strings.
func (s Snapshot) HasRole(required models.Role) bool {
	canonical := models.CanonicalRole(string(required))
	for _, r := range s.Roles {
		if r == canonical {
			return true
		}
	}
	return false
}

// Options configure a Manager's safety timers.
type Options struct {
	AuthResolveTimeout time.Duration
	RoleResolveTimeout time.Duration
}

// Manager is the session state machine. It is the single writer of the
// identity/role pair; all other components read snapshots. A role fetch
// is triggered exactly once per identity id: a repeated event for the
// same id (a token refresh) must not re-trigger it, and a fetch result
// for an identity that is no longer current is discarded, so a slow
// fetch for a previous user can never populate the next user's role.
type Manager struct {
	resolver RoleResolver

	authTimeout time.Duration
	roleTimeout time.Duration

	mu            sync.Mutex
	identity      *Identity
	roles         []models.Role
	lastLoadedID  string
	authResolving bool
	roleResolving bool
	booted        bool
	fetchGen      uint64
	roleTimer     *time.Timer
	changed       chan struct{}
}

// NewManager creates a Manager using the given role resolver.
func NewManager(resolver RoleResolver, opts Options) *Manager {
	if opts.AuthResolveTimeout <= 0 {
		opts.AuthResolveTimeout = DefaultAuthResolveTimeout
	}
	if opts.RoleResolveTimeout <= 0 {
		opts.RoleResolveTimeout = DefaultRoleResolveTimeout
	}
	return &Manager{
		resolver:    resolver,
		authTimeout: opts.AuthResolveTimeout,
		roleTimeout: opts.RoleResolveTimeout,
		changed:     make(chan struct{}),
	}
}

// Start boots the machine: resolve the current session under the auth
// safety bound, then consume change notifications until the source
// closes or ctx is cancelled. Start returns after boot; consumption
// continues in the background.
func (m *Manager) Start(ctx context.Context, src Source) {
	m.mu.Lock()
	m.booted = true
	m.authResolving = true
	m.changedLocked()
	m.mu.Unlock()

	go func() {
		start := time.Now()
		id, err := ResolveWithTimeout(ctx, m.authTimeout, src.Current)
		monitoring.RecordResolution("auth", time.Since(start))
		if err != nil {
			// The UI must never hang on a stuck provider: the flag drops
			// and the session stays anonymous until an event arrives.
			slog.Warn("Auth resolution did not settle, continuing anonymous", "error", err)
			id = nil
		}
		// The resolved identity is applied in the same critical section
		// that drops the auth flag, so no reader can settle on an
		// anonymous snapshot between the two.
		m.mu.Lock()
		m.authResolving = false
		m.setIdentityLocked(id)
		m.changedLocked()
		m.mu.Unlock()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src.Changes():
				if !ok {
					return
				}
				m.SetIdentity(ev.Identity)
			}
		}
	}()
}

// SetIdentity applies a session-change notification. nil clears the
// session. The same identity id re-announced (token refresh) is a no-op
// for role resolution.
func (m *Manager) SetIdentity(id *Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setIdentityLocked(id)
}

func (m *Manager) setIdentityLocked(id *Identity) {
	m.booted = true

	if id == nil {
		m.signOutLocked()
		return
	}

	if m.identity != nil && m.identity.ID == id.ID && m.lastLoadedID == id.ID {
		// Same subject, roles already loaded or loading; identity details
		// may still have changed (email), so keep the newest.
		m.identity = id
		return
	}

	m.identity = id
	m.roles = nil
	m.lastLoadedID = id.ID
	m.roleResolving = true
	m.fetchGen++
	gen := m.fetchGen
	m.armRoleTimerLocked(gen)
	m.changedLocked()

	go m.fetchRoles(*id, gen)
}

// SignOut clears identity, role and the fetch-once marker in one step;
// no reader can observe a cleared identity with a stale role.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOutLocked()
}

func (m *Manager) signOutLocked() {
	m.identity = nil
	m.roles = nil
	m.lastLoadedID = ""
	m.roleResolving = false
	m.fetchGen++ // invalidates in-flight fetches and armed timers
	m.stopRoleTimerLocked()
	m.changedLocked()
}

// fetchRoles resolves roles for the identity and applies the result only
// if that identity is still current when the fetch completes. Stale
// results are discarded, never applied.
func (m *Manager) fetchRoles(id Identity, gen uint64) {
	start := time.Now()
	roles, err := m.resolver.ResolveRole(context.Background(), id.ID)
	monitoring.RecordResolution("role", time.Since(start))
	if err != nil {
		slog.Debug("Role resolution degraded to no role", "identityId", id.ID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.fetchGen || m.identity == nil || m.identity.ID != id.ID {
		slog.Debug("Discarding stale role fetch result", "fetchedFor", id.ID)
		return
	}
	m.stopRoleTimerLocked()
	m.roles = roles
	m.roleResolving = false
	m.changedLocked()
}

// armRoleTimerLocked starts the role-resolution safety timer. It forces
// the loading flag down exactly once if the fetch never settles, and is
// cleared when the fetch completes first.
func (m *Manager) armRoleTimerLocked(gen uint64) {
	m.stopRoleTimerLocked()
	m.roleTimer = time.AfterFunc(m.roleTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.fetchGen || !m.roleResolving {
			return
		}
		slog.Warn("Role resolution safety timer fired", "timeout", m.roleTimeout)
		m.roleResolving = false
		m.changedLocked()
	})
}

func (m *Manager) stopRoleTimerLocked() {
	if m.roleTimer != nil {
		m.roleTimer.Stop()
		m.roleTimer = nil
	}
}

// changedLocked wakes everyone blocked in AwaitSettled.
func (m *Manager) changedLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Snapshot returns a consistent view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		AuthLoading: m.authResolving,
		RoleLoading: m.roleResolving,
	}
	if m.identity != nil {
		idCopy := *m.identity
		snap.Identity = &idCopy
	}
	snap.Roles = append(snap.Roles, m.roles...)
	snap.State = m.stateLocked()
	return snap
}

func (m *Manager) stateLocked() State {
	switch {
	case !m.booted:
		return StateUnknown
	case m.authResolving:
		return StateAuthResolving
	case m.identity == nil:
		return StateAnonymous
	case m.roleResolving:
		return StateRoleResolving
	case len(m.roles) > 0:
		return StateRoleKnown
	default:
		return StateRoleUnknown
	}
}

// Loading is the composed flag; see Snapshot.Loading.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authResolving || m.roleResolving
}

// RolesLoading reports whether a role fetch is in flight.
func (m *Manager) RolesLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roleResolving
}

// AwaitSettled blocks until the composed loading flag clears, the bound
// elapses, or ctx is cancelled. It reports whether the session settled.
func (m *Manager) AwaitSettled(ctx context.Context, bound time.Duration) bool {
	deadline := time.NewTimer(bound)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		loading := m.authResolving || m.roleResolving
		ch := m.changed
		m.mu.Unlock()

		if !loading {
			return true
		}
		select {
		case <-ch:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Teardown clears all session state; the Manager may be started again.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signOutLocked()
	m.booted = false
	m.authResolving = false
}
