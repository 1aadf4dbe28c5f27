package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rcms-care/portal-backend/v1/models"
	"github.com/rcms-care/portal-backend/v1/store"
)

// DefaultRoleResolveTimeout bounds a role lookup against the backing
// store. Exceeding it yields an empty role list, never an error the
// caller has to handle; "no role" means "unauthenticated for policy
// purposes", not something to retry.
const DefaultRoleResolveTimeout = 12 * time.Second

var (
	// ErrRoleLookupTimeout marks a lookup that exceeded the bound.
	ErrRoleLookupTimeout = errors.New("role lookup timed out")
	// ErrRoleLookupFailed marks a hard backing-store failure.
	ErrRoleLookupFailed = errors.New("role lookup failed")
)

// RoleResolver resolves the roles for an identity. The slice is empty
// when no role is known; implementations must not surface timeouts or
// store failures as actionable errors.
type RoleResolver interface {
	ResolveRole(ctx context.Context, identityID string) ([]models.Role, error)
}

// Fetcher resolves a subject's canonical roles from the backing store:
// profile store first, legacy user table on a miss, both under one
// timeout. Read-only; logging here is advisory and not part of the
// contract.
type Fetcher struct {
	store   store.RoleStore
	timeout time.Duration
}

// NewFetcher creates a Fetcher. A non-positive timeout selects the
// default bound.
func NewFetcher(roleStore store.RoleStore, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultRoleResolveTimeout
	}
	return &Fetcher{store: roleStore, timeout: timeout}
}

// ResolveRole returns the canonical roles for the identity. The error is
// one of the sentinel values above and is for logging/metrics only:
// whenever it is non-nil the role slice is empty and callers proceed
// with "no role known".
func (f *Fetcher) ResolveRole(ctx context.Context, identityID string) ([]models.Role, error) {
	raw, err := ResolveWithTimeout(ctx, f.timeout, func(ctx context.Context) (string, error) {
		return f.lookupRaw(ctx, identityID)
	})
	switch {
	case errors.Is(err, ErrResolveTimeout):
		slog.Warn("Role lookup exceeded bound, treating as no role", "identityId", identityID, "timeout", f.timeout)
		return []models.Role{}, ErrRoleLookupTimeout
	case errors.Is(err, store.ErrNotFound):
		return []models.Role{}, nil
	case err != nil:
		slog.Warn("Role lookup failed, treating as no role", "identityId", identityID, "error", err)
		return []models.Role{}, ErrRoleLookupFailed
	}

	role := models.CanonicalRole(raw)
	if role == "" {
		return []models.Role{}, nil
	}
	// A subject carries at most one primary role; the slice form is the
	// contract with the session manager.
	return []models.Role{role}, nil
}

// lookupRaw tries the profile store and falls back to the legacy user
// table on a miss or on a primary-side failure (the profile table may
// not exist in older deployments).
func (f *Fetcher) lookupRaw(ctx context.Context, identityID string) (string, error) {
	raw, err := f.store.PrimaryRole(ctx, identityID)
	if err == nil && raw != "" {
		return raw, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Debug("Primary role lookup failed, falling back to legacy table", "identityId", identityID, "error", err)
	}
	return f.store.LegacyRole(ctx, identityID)
}
