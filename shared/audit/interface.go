package audit

import "context"

// Auditor is the primary interface for audit logging operations.
//
// Implementations must be fire-and-forget: LogEvent returns immediately
// and never blocks or fails the calling action. A lost audit event is
// logged and dropped; the user-facing operation proceeds regardless.
type Auditor interface {
	// LogEvent records an audit event asynchronously. Implementations
	// handle the event in a background goroutine so the calling code is
	// never blocked on the trail.
	LogEvent(ctx context.Context, record *Record)

	// IsEnabled reports whether audit logging is currently active.
	// Callers may use it to skip expensive record preparation.
	IsEnabled() bool
}
