package audit

// InitializeGlobalAudit initializes the global audit middleware instance.
// This should be called once during application startup; subsequent
// calls are ignored.
//
// When client is nil or IsEnabled() returns false, audit logging is
// skipped but the service continues to function normally.
func InitializeGlobalAudit(client Auditor) {
	globalOnce.Do(func() {
		globalMiddleware = &Middleware{client: client}
	})
}
