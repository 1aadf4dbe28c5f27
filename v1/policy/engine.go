// Package policy implements the consent-scoped access-control engine.
//
// Every function here is pure: decisions depend only on the role and the
// case snapshot passed in, never on stored state, and no function returns
// an error. When multiple conditions could apply, deny wins; no rule can
// re-grant after another rule has denied. Roles outside the closed
// enumeration carry no privileges (fail-closed), even though the role
// fetcher passes unknown raw strings through upper-cased (fail-open).
// The two defaults are intentionally asymmetric.
package policy

import (
	"fmt"

	"github.com/rcms-care/portal-backend/v1/models"
)

// Decision pairs a denial with a human-readable reason. Reasons are UX
// messaging, not audit records.
type Decision struct {
	Blocked bool
	Reason  string
}

// CanSeeSensitive reports whether the role may see clinical and identity
// fields on the case. On sensitive-tagged cases (restricted access or a
// sensitive hold) only the elevated clearance set qualifies; everyone
// else, CLIENT and ATTORNEY included, gets the masked rendering.
func CanSeeSensitive(role models.Role, cs models.CaseSnapshot) bool {
	if cs.SensitiveTagged() && !role.IsElevated() {
		return false
	}
	return true
}

// CanSeeSensitiveFor is CanSeeSensitive with the designated-attorney
// exception: the specific attorney designated on a sensitive case may see
// it even when restricted access would block attorneys in general.
func CanSeeSensitiveFor(role models.Role, cs models.CaseSnapshot, requesterID string) bool {
	if CanSeeSensitive(role, cs) {
		return true
	}
	if role == models.RoleAttorney && requesterID != "" && cs.DesignatedAttorneyID == requesterID {
		return true
	}
	return false
}

// IsBlockedForAttorney reports whether an attorney is barred from the
// case entirely, with the reason shown to the user. Non-attorney roles
// are never blocked by this check.
func IsBlockedForAttorney(role models.Role, cs models.CaseSnapshot, requesterID string) Decision {
	if role != models.RoleAttorney {
		return Decision{}
	}
	if cs.Status == models.CaseStatusHoldSensitive {
		return Decision{Blocked: true, Reason: "case is on sensitive hold pending consent"}
	}
	if cs.SensitiveTagged() && cs.DesignatedAttorneyID != "" && cs.DesignatedAttorneyID != requesterID {
		return Decision{Blocked: true, Reason: "case is designated to another attorney"}
	}
	if !cs.Consent.Signed {
		return Decision{Blocked: true, Reason: "client consent is not signed"}
	}
	if !cs.Consent.Scope.ShareWithAttorney {
		return Decision{Blocked: true, Reason: "client consent does not authorize sharing with attorneys"}
	}
	return Decision{}
}

// ExportAllowed reports whether the role may export case data. A case on
// sensitive hold is never exportable, for any role.
func ExportAllowed(role models.Role, cs models.CaseSnapshot) bool {
	if cs.Status == models.CaseStatusHoldSensitive {
		return false
	}
	if !role.CanExport() {
		return false
	}
	if role == models.RoleAttorney && (!cs.Consent.Signed || !cs.Consent.Scope.ShareWithAttorney) {
		return false
	}
	return CanSeeSensitive(role, cs)
}

// CanAccess renders the decision for a feature on a case. requesterID is
// the acting subject's id; for CLIENT it is matched against the case's
// client RCMS id (a client may view clinical data on their own case
// only), for ATTORNEY against the designated attorney id.
func CanAccess(role models.Role, cs models.CaseSnapshot, feature models.Feature, requesterID string) bool {
	// Passthrough/garbage roles get nothing.
	if !role.IsValid() {
		return false
	}

	switch feature {
	case models.FeatureRouteProvider:
		// Consent scope is the sole gate for provider routing; no role
		// overrides shareWithProviders=false, and a hold freezes routing.
		if cs.Status == models.CaseStatusHoldSensitive {
			return false
		}
		return cs.Consent.Signed && cs.Consent.Scope.ShareWithProviders

	case models.FeatureViewIdentity:
		if !CanSeeSensitiveFor(role, cs, requesterID) {
			return false
		}
		if role == models.RoleAttorney {
			return !IsBlockedForAttorney(role, cs, requesterID).Blocked
		}
		return true

	case models.FeatureViewClinical:
		if !CanSeeSensitiveFor(role, cs, requesterID) {
			return false
		}
		if role == models.RoleClient {
			return requesterID != "" && cs.Client.RcmsID == requesterID
		}
		if role == models.RoleAttorney {
			return !IsBlockedForAttorney(role, cs, requesterID).Blocked
		}
		return true
	}

	return false
}

// CanSearchByName reports whether the role may search cases by client
// name. CLIENT and PROVIDER search by case identifier only.
func CanSearchByName(role models.Role) bool {
	return role.CanSearchByName()
}

// DenialReason builds the user-facing message shown when a required role
// is missing. actual may be empty when no role resolved.
func DenialReason(required, actual models.Role) string {
	if actual == "" {
		actual = "unknown"
	}
	return fmt.Sprintf("requires %s role; your role: %s", required, actual)
}
