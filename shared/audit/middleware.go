package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Middleware routes audit records to the configured Auditor.
type Middleware struct {
	client Auditor
}

// Global middleware instance for easy access from handlers
var (
	globalMiddleware *Middleware
	globalOnce       sync.Once
)

// NewMiddleware creates an audit middleware and sets the global instance
// on first call. When client is nil or disabled the middleware skips all
// logging but the service keeps functioning.
func NewMiddleware(client Auditor) *Middleware {
	middleware := &Middleware{client: client}

	globalOnce.Do(func() {
		globalMiddleware = middleware
	})

	return middleware
}

// Client returns the audit client instance.
func (m *Middleware) Client() Auditor {
	return m.client
}

// LogEvent forwards a record to the underlying client.
func (m *Middleware) LogEvent(ctx context.Context, record *Record) {
	if m.client == nil {
		return
	}
	m.client.LogEvent(ctx, record)
}

// LogEvent records an audit event through the global middleware. This is
// the function handlers call.
func LogEvent(ctx context.Context, record *Record) {
	if globalMiddleware != nil {
		globalMiddleware.LogEvent(ctx, record)
	} else {
		slog.Warn("Global audit middleware is not initialized; record not logged")
	}
}

// GetGlobalMiddleware returns the global middleware instance.
func GetGlobalMiddleware() *Middleware {
	return globalMiddleware
}

// ResetGlobalMiddleware resets global state between test cases. Tests only.
func ResetGlobalMiddleware() {
	globalOnce = sync.Once{}
	globalMiddleware = nil
}
