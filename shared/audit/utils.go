package audit

import (
	"time"
)

// CurrentTimestamp returns current UTC time in RFC3339 format.
// This provides a consistent timestamp format across all audit records.
func CurrentTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewRecord builds a success record for an action on a case.
func NewRecord(action, actorID, actorRole, caseID string) *Record {
	return &Record{
		Timestamp: CurrentTimestamp(),
		Action:    action,
		Status:    StatusSuccess,
		ActorID:   actorID,
		ActorRole: actorRole,
		CaseID:    caseID,
	}
}

// NewFailureRecord builds a failure record with a detail note.
func NewFailureRecord(action, actorID, actorRole, caseID, detail string) *Record {
	r := NewRecord(action, actorID, actorRole, caseID)
	r.Status = StatusFailure
	r.Detail = detail
	return r
}
