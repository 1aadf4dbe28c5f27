package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is the payload for one compliance-relevant action. Identity
// fields carry opaque ids only; client names and other PII never enter
// the trail.
type Record struct {
	// Timestamp is ISO 8601; filled at emit time when empty.
	Timestamp string `json:"timestamp"`

	// Action is what happened: EXPORT, CONSENT_REVOKED, PROVIDER_ROUTED,
	// PROVIDER_ADDED, PROVIDER_SWAPPED, or a guard decision.
	Action string `json:"action"`
	Status string `json:"status"` // SUCCESS, FAILURE

	// ActorID is the acting subject's opaque id; ActorRole its canonical
	// role at the time of the action.
	ActorID   string `json:"actorId"`
	ActorRole string `json:"actorRole,omitempty"`

	// CaseID is the case acted upon, when the action targets one.
	CaseID string `json:"caseId,omitempty"`

	// Detail is a short free-form note (denial reason, route name).
	Detail string `json:"detail,omitempty"`
}

// Audit record status constants
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Entry is the persisted form of a Record for deployments that keep the
// trail in the service's own database. The table is append-only: rows
// are created and read, never updated or deleted.
type Entry struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	Action    string    `gorm:"column:action" json:"action"`
	Status    string    `gorm:"column:status" json:"status"`
	ActorID   string    `gorm:"column:actor_id" json:"actorId"`
	ActorRole string    `gorm:"column:actor_role" json:"actorRole"`
	CaseID    string    `gorm:"column:case_id;index" json:"caseId"`
	Detail    string    `gorm:"column:detail" json:"detail"`
}

// TableName sets the table name for GORM.
func (Entry) TableName() string {
	return "audit_entries"
}

// BeforeCreate assigns a UUID primary key.
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
