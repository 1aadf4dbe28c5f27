package models

// Feature represents a policy-gated capability on a case.
type Feature string

const (
	FeatureViewIdentity  Feature = "VIEW_IDENTITY"
	FeatureViewClinical  Feature = "VIEW_CLINICAL"
	FeatureRouteProvider Feature = "ROUTE_PROVIDER"
)

// Action represents an auditable, state-changing operation. Page entry
// is never audited; only mutating actions are.
type Action string

const (
	ActionExport          Action = "EXPORT"
	ActionConsentRevoked  Action = "CONSENT_REVOKED"
	ActionProviderRouted  Action = "PROVIDER_ROUTED"
	ActionProviderAdded   Action = "PROVIDER_ADDED"
	ActionProviderSwapped Action = "PROVIDER_SWAPPED"
)

// Field length constraints for stored records.
const (
	MaxEmailLength    = 320 // RFC 3696 specification
	MaxFullNameLength = 255
	MaxReasonLength   = 500
)
