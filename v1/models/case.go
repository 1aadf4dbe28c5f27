package models

import "time"

// CaseStatus represents the lifecycle status of a case.
type CaseStatus string

const (
	CaseStatusNew             CaseStatus = "NEW"
	CaseStatusAwaitingConsent CaseStatus = "AWAITING_CONSENT"
	CaseStatusInProgress      CaseStatus = "IN_PROGRESS"
	CaseStatusRouted          CaseStatus = "ROUTED"
	CaseStatusHoldSensitive   CaseStatus = "HOLD_SENSITIVE"
	CaseStatusClosed          CaseStatus = "CLOSED"
)

// ConsentScope holds the per-case sharing flags signed off by the client.
// These flags are the sole gate for attorney/provider data sharing; no
// role membership overrides a false value here.
type ConsentScope struct {
	ShareWithAttorney  bool `json:"shareWithAttorney"`
	ShareWithProviders bool `json:"shareWithProviders"`
}

// Consent captures the client's signed consent and its scope.
type Consent struct {
	Signed           bool         `json:"signed"`
	Scope            ConsentScope `json:"scope"`
	RestrictedAccess bool         `json:"restrictedAccess"`
	SignedAt         *time.Time   `json:"signedAt,omitempty"`
}

// ClientRecord holds the identity fields of the client on a case that
// are subject to masking.
type ClientRecord struct {
	FullName string `json:"fullName,omitempty"`
	RcmsID   string `json:"rcmsId"`
}

// CaseSnapshot is the read-only view of a case the policy engine
// consumes. Other case fields exist in storage but are not read by any
// access decision.
type CaseSnapshot struct {
	ID                   string       `json:"id"`
	Status               CaseStatus   `json:"status"`
	Consent              Consent      `json:"consent"`
	DesignatedAttorneyID string       `json:"designatedAttorneyId,omitempty"`
	Client               ClientRecord `json:"client"`
}

// SensitiveTagged reports whether the case is flagged for narrower
// default visibility.
func (c CaseSnapshot) SensitiveTagged() bool {
	return c.Consent.RestrictedAccess || c.Status == CaseStatusHoldSensitive
}
