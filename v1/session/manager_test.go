package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcms-care/portal-backend/v1/models"
)

// scriptedResolver counts calls per identity and can hold a fetch open
// until the test releases it.
type scriptedResolver struct {
	mu    sync.Mutex
	calls map[string]int
	roles map[string][]models.Role
	gates map[string]chan struct{}
}

func newScriptedResolver() *scriptedResolver {
	return &scriptedResolver{
		calls: make(map[string]int),
		roles: make(map[string][]models.Role),
		gates: make(map[string]chan struct{}),
	}
}

func (s *scriptedResolver) set(identityID string, roles ...models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[identityID] = roles
}

func (s *scriptedResolver) hold(identityID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gates[identityID] = gate
	return gate
}

func (s *scriptedResolver) callCount(identityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[identityID]
}

func (s *scriptedResolver) ResolveRole(ctx context.Context, identityID string) ([]models.Role, error) {
	s.mu.Lock()
	s.calls[identityID]++
	gate := s.gates[identityID]
	roles := s.roles[identityID]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return roles, nil
}

func settled(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	require.True(t, m.AwaitSettled(context.Background(), time.Second), "session did not settle")
	return m.Snapshot()
}

func TestManager_ResolvesRolesOnSignIn(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleAttorney)
	m := NewManager(resolver, Options{})

	m.SetIdentity(&Identity{ID: "u1", Email: "a@example.com"})

	snap := settled(t, m)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "u1", snap.Identity.ID)
	assert.Equal(t, models.RoleAttorney, snap.PrimaryRole())
	assert.True(t, snap.HasRole(models.RoleAttorney))
	assert.True(t, snap.HasRole(models.Role("attorney")), "HasRole canonicalizes boundary input")
	assert.False(t, snap.Loading())
}

func TestManager_FetchOncePerIdentity(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleClient)
	m := NewManager(resolver, Options{})

	m.SetIdentity(&Identity{ID: "u1"})
	settled(t, m)

	// A token refresh re-announces the same subject.
	m.SetIdentity(&Identity{ID: "u1", Email: "fresh@example.com"})
	snap := settled(t, m)

	assert.Equal(t, 1, resolver.callCount("u1"), "same identity id must not re-trigger the fetch")
	assert.Equal(t, models.RoleClient, snap.PrimaryRole())
	assert.Equal(t, "fresh@example.com", snap.Identity.Email, "identity details still update")
}

func TestManager_IdentitySwitchDiscardsStaleFetch(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("alice", models.RoleSuperAdmin)
	resolver.set("bob", models.RoleClient)
	aliceGate := resolver.hold("alice")

	m := NewManager(resolver, Options{})

	// Alice signs in; her (slow) fetch is in flight when Bob takes over.
	m.SetIdentity(&Identity{ID: "alice"})
	m.SetIdentity(&Identity{ID: "bob"})

	snap := settled(t, m)
	assert.Equal(t, models.RoleClient, snap.PrimaryRole())

	// Alice's fetch finally completes; it must be discarded, not applied.
	close(aliceGate)
	time.Sleep(50 * time.Millisecond)

	snap = m.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "bob", snap.Identity.ID)
	assert.Equal(t, []models.Role{models.RoleClient}, snap.Roles,
		"a stale fetch result must never populate the next user's role")
}

func TestManager_RoleTimeoutForcesLoadingDown(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleStaff)
	gate := resolver.hold("u1")
	defer close(gate)

	signals := NewSignals()
	defer signals.Close()
	signals.Publish(&Identity{ID: "u1"})

	m := NewManager(resolver, Options{RoleResolveTimeout: 30 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, signals)

	require.Eventually(t, func() bool {
		return m.Snapshot().State == StateRoleUnknown
	}, time.Second, 10*time.Millisecond, "safety timer must force the flag down")

	snap := m.Snapshot()
	assert.False(t, snap.RoleLoading)
	assert.Empty(t, snap.Roles, "no role is known until the fetch settles")
}

func TestManager_BootAppliesIdentityBeforeSettling(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleStaff)
	gate := resolver.hold("u1")

	signals := NewSignals()
	defer signals.Close()
	signals.Publish(&Identity{ID: "u1"})

	m := NewManager(resolver, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, signals)

	// With the role fetch held open there is no instant, however brief,
	// at which the session reads as settled and anonymous.
	assert.False(t, m.AwaitSettled(context.Background(), 100*time.Millisecond),
		"the session must not settle while the subject's role is unresolved")
	snap := m.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "u1", snap.Identity.ID)
	assert.True(t, snap.RoleLoading)

	close(gate)
	snap = settled(t, m)
	assert.Equal(t, models.RoleStaff, snap.PrimaryRole())
}

func TestManager_SignOutClearsAtomically(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleAttorney)
	gate := resolver.hold("u1")

	m := NewManager(resolver, Options{})
	m.SetIdentity(&Identity{ID: "u1"})
	m.SignOut()

	// The in-flight fetch completes after sign-out; nothing may leak back.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	snap := m.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Empty(t, snap.Roles)
	assert.False(t, snap.Loading())
}

func TestManager_SignOutResetsFetchOnceGuard(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleClient)
	m := NewManager(resolver, Options{})

	m.SetIdentity(&Identity{ID: "u1"})
	settled(t, m)
	m.SignOut()

	// Signing back in is a fresh session and fetches again.
	m.SetIdentity(&Identity{ID: "u1"})
	snap := settled(t, m)

	assert.Equal(t, 2, resolver.callCount("u1"))
	assert.Equal(t, models.RoleClient, snap.PrimaryRole())
}

func TestManager_AwaitSettledTimesOut(t *testing.T) {
	resolver := newScriptedResolver()
	gate := resolver.hold("u1")
	defer close(gate)

	m := NewManager(resolver, Options{})
	m.SetIdentity(&Identity{ID: "u1"})

	start := time.Now()
	assert.False(t, m.AwaitSettled(context.Background(), 30*time.Millisecond))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestManager_StartConsumesSource(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleRNCM)

	signals := NewSignals()
	defer signals.Close()

	m := NewManager(resolver, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, signals)

	// Boot with no session settles to anonymous.
	require.True(t, m.AwaitSettled(context.Background(), time.Second))
	assert.Equal(t, StateAnonymous, m.Snapshot().State)

	// A sign-in event flows through to a resolved role.
	signals.Publish(&Identity{ID: "u1"})
	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return !snap.Loading() && snap.PrimaryRole() == models.RoleRNCM
	}, time.Second, 10*time.Millisecond)

	// Sign-out clears the session.
	require.NoError(t, signals.SignOut(context.Background()))
	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return snap.Identity == nil && len(snap.Roles) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, StateAnonymous, m.Snapshot().State)
}

func TestManager_TeardownAllowsRestart(t *testing.T) {
	resolver := newScriptedResolver()
	resolver.set("u1", models.RoleStaff)
	m := NewManager(resolver, Options{})

	m.SetIdentity(&Identity{ID: "u1"})
	settled(t, m)

	m.Teardown()
	snap := m.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Equal(t, StateUnknown, snap.State)

	m.SetIdentity(&Identity{ID: "u1"})
	snap = settled(t, m)
	assert.Equal(t, models.RoleStaff, snap.PrimaryRole())
}
