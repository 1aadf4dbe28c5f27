package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rcms-care/portal-backend/shared/utils"
)

const (
	// RecordsEndpoint is the API endpoint for creating audit records on
	// the remote trail service. This is the client's side of the trail
	// service contract: the service must accept POST on this path and
	// answer 201; a sink exposing records under a different path needs a
	// rewrite at the gateway, not a change here.
	RecordsEndpoint = "/api/audit-records"
	// DefaultHTTPTimeout is the default timeout for HTTP requests to the audit service
	DefaultHTTPTimeout = 10 * time.Second
)

// Client sends audit records to a remote trail service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	enabled    bool
}

// NewClient creates a new audit client.
// Audit can be disabled by:
//   - Setting ENABLE_AUDIT=false environment variable
//   - Providing an empty baseURL
//
// When disabled, all LogEvent calls will be no-ops.
func NewClient(baseURL string) *Client {
	enabled := isAuditEnabled(baseURL)

	if !enabled {
		slog.Info("Audit client disabled",
			"reason", "ENABLE_AUDIT=false or audit service URL not configured",
			"impact", "Actions will continue but audit records will not be kept")
		return &Client{enabled: false}
	}

	slog.Info("Audit client initialized", "baseURL", baseURL)
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultHTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
		enabled: true,
	}
}

// IsEnabled returns whether the audit client is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

// LogEvent sends an audit record asynchronously (fire-and-forget).
// It returns immediately and delivers the record in a background
// goroutine using a background context, so delivery outlives the
// request that triggered it.
func (c *Client) LogEvent(ctx context.Context, record *Record) {
	if !c.enabled || c.httpClient == nil {
		return
	}
	stamp(record)
	go c.send(context.Background(), record)
}

func (c *Client) send(ctx context.Context, record *Record) {
	payloadBytes, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal audit record", "error", err)
		return
	}

	endpointURL, err := url.JoinPath(c.baseURL, RecordsEndpoint)
	if err != nil {
		slog.Error("Failed to construct audit service URL", "error", err, "baseURL", c.baseURL)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payloadBytes))
	if err != nil {
		slog.Error("Failed to create audit request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send audit record", "error", err)
		return
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			slog.Error("Failed to close audit response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			slog.Error("Audit service returned non-201 status and failed to read body",
				"status", resp.StatusCode, "readError", readErr)
		} else {
			slog.Error("Audit service returned non-201 status",
				"status", resp.StatusCode, "body", string(bodyBytes))
		}
		return
	}

	slog.Info("Audit record logged",
		"action", record.Action,
		"actorId", record.ActorID,
		"caseId", record.CaseID,
		"status", record.Status)
}

// stamp fills the timestamp if the caller left it empty.
func stamp(record *Record) {
	if record.Timestamp == "" {
		record.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
}

// isAuditEnabled checks if audit logging is enabled via environment variable.
// Audit is enabled by default unless explicitly disabled via ENABLE_AUDIT=false
// or if baseURL is empty.
func isAuditEnabled(baseURL string) bool {
	if baseURL == "" {
		return false
	}
	return utils.GetEnvBoolOrDefault("ENABLE_AUDIT", true)
}
