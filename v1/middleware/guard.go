package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rcms-care/portal-backend/monitoring"
	"github.com/rcms-care/portal-backend/shared/utils"
	"github.com/rcms-care/portal-backend/v1/models"
	"github.com/rcms-care/portal-backend/v1/policy"
	"github.com/rcms-care/portal-backend/v1/session"
)

// Outcome is what the guard decided for a request.
type Outcome string

const (
	OutcomeAdmit         Outcome = "admit"
	OutcomeDeny          Outcome = "deny"
	OutcomeRedirectLogin Outcome = "redirect_login"
)

// GuardDecision is the result of one route guard check.
type GuardDecision struct {
	Outcome Outcome
	// Reason is set on deny; it is the same text stored in the flash for
	// the login surface.
	Reason string
	// Snapshot is the session the decision was made from. It is only
	// populated when the request carried an identity.
	Snapshot session.Snapshot
}

// DefaultGuardGrace is how long the guard waits for a settling session
// before failing closed.
const DefaultGuardGrace = 2 * time.Second

// RouteGuard gates protected routes on the requesting subject's own
// session, looked up in the per-identity registry; the session another
// request signed in with is never consulted. While that session is
// still resolving, the guard waits up to its grace window; a session
// that has not settled by then is treated as not authorized, never
// provisionally admitted.
type RouteGuard struct {
	sessions *session.Registry
	flash    FlashStore
	grace    time.Duration
}

// NewRouteGuard creates a guard. A non-positive grace selects the default.
func NewRouteGuard(sessions *session.Registry, flash FlashStore, grace time.Duration) *RouteGuard {
	if grace <= 0 {
		grace = DefaultGuardGrace
	}
	return &RouteGuard{sessions: sessions, flash: flash, grace: grace}
}

// Check decides whether the requesting identity may enter a route
// requiring one of the given roles. An empty required list means any
// authenticated subject is admitted; a nil identity is anonymous.
func (g *RouteGuard) Check(ctx context.Context, route string, id *session.Identity, required ...models.Role) GuardDecision {
	m := g.sessions.For(id)
	if m == nil {
		monitoring.RecordGuardDecision(route, string(OutcomeRedirectLogin))
		return GuardDecision{Outcome: OutcomeRedirectLogin}
	}

	settled := m.AwaitSettled(ctx, g.grace)
	snap := m.Snapshot()

	if !settled {
		// Fail closed: an unsettled session is not authorized.
		slog.Warn("Session did not settle within grace window, denying",
			"route", route, "identityId", id.ID, "grace", g.grace)
		return g.denied(ctx, route, id.ID, snap, "session could not be verified in time")
	}

	if len(required) == 0 {
		monitoring.RecordGuardDecision(route, string(OutcomeAdmit))
		return GuardDecision{Outcome: OutcomeAdmit, Snapshot: snap}
	}

	for _, role := range required {
		if snap.HasRole(role) {
			monitoring.RecordGuardDecision(route, string(OutcomeAdmit))
			return GuardDecision{Outcome: OutcomeAdmit, Snapshot: snap}
		}
	}

	return g.denied(ctx, route, id.ID, snap, policy.DenialReason(required[0], snap.PrimaryRole()))
}

func (g *RouteGuard) denied(ctx context.Context, route, identityID string, snap session.Snapshot, reason string) GuardDecision {
	monitoring.RecordGuardDecision(route, string(OutcomeDeny))
	if g.flash != nil {
		if err := g.flash.Put(ctx, flashKey(identityID), reason); err != nil {
			slog.Warn("Failed to store denial reason", "error", err)
		}
	}
	return GuardDecision{Outcome: OutcomeDeny, Reason: reason, Snapshot: snap}
}

// TakeDenialReason returns and clears the pending denial reason for a
// subject, if any.
func (g *RouteGuard) TakeDenialReason(ctx context.Context, identityID string) (string, bool) {
	if g.flash == nil {
		return "", false
	}
	reason, err := g.flash.Take(ctx, flashKey(identityID))
	if err != nil {
		return "", false
	}
	return reason, true
}

func flashKey(identityID string) string {
	return "denial:" + identityID
}

// Protect wraps a handler so only requests whose own identity holds one
// of the required roles reach it.
func (g *RouteGuard) Protect(route string, next http.Handler, required ...models.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Check(r.Context(), route, GetIdentity(r.Context()), required...)
		switch decision.Outcome {
		case OutcomeAdmit:
			next.ServeHTTP(w, r)
		case OutcomeRedirectLogin:
			utils.RespondWithJSON(w, http.StatusUnauthorized, map[string]string{
				"error":    "authentication required",
				"redirect": "/login",
			})
		default:
			utils.RespondWithError(w, http.StatusForbidden, decision.Reason)
		}
	})
}
