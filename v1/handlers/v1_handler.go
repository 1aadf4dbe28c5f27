package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rcms-care/portal-backend/shared/audit"
	"github.com/rcms-care/portal-backend/shared/utils"
	"github.com/rcms-care/portal-backend/v1/middleware"
	"github.com/rcms-care/portal-backend/v1/models"
	"github.com/rcms-care/portal-backend/v1/policy"
	"github.com/rcms-care/portal-backend/v1/session"
	"github.com/rcms-care/portal-backend/v1/store"
)

// V1Handler handles all V1 API routes. Handlers receive booleans and
// reasons from the policy engine; no access rule lives in this package.
// Every decision is made against the identity carried by the request
// itself, never against whichever session signed in last.
type V1Handler struct {
	cases    store.CaseStore
	sessions *session.Registry
	guard    *middleware.RouteGuard
}

// NewV1Handler creates a new V1 handler.
func NewV1Handler(cases store.CaseStore, sessions *session.Registry, guard *middleware.RouteGuard) *V1Handler {
	return &V1Handler{cases: cases, sessions: sessions, guard: guard}
}

// SetupV1Routes configures all V1 API routes.
func (h *V1Handler) SetupV1Routes(mux *http.ServeMux) {
	mux.Handle("/api/v1/cases", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleCases)))
	mux.Handle("/api/v1/cases/", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleCases)))
	mux.Handle("/api/v1/session", utils.PanicRecoveryMiddleware(http.HandlerFunc(h.handleSession)))
}

// caseView is the guarded projection of a case returned to callers.
type caseView struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	DisplayName     string `json:"displayName"`
	CanViewIdentity bool   `json:"canViewIdentity"`
	CanViewClinical bool   `json:"canViewClinical"`
	CanExport       bool   `json:"canExport"`
	CanRoute        bool   `json:"canRouteProvider"`
	BlockedReason   string `json:"blockedReason,omitempty"`
}

func (h *V1Handler) buildCaseView(role models.Role, cs models.CaseSnapshot, requesterID string) caseView {
	blocked := policy.IsBlockedForAttorney(role, cs, requesterID)
	return caseView{
		ID:              cs.ID,
		Status:          string(cs.Status),
		DisplayName:     policy.DisplayNameFor(role, cs, requesterID),
		CanViewIdentity: policy.CanAccess(role, cs, models.FeatureViewIdentity, requesterID),
		CanViewClinical: policy.CanAccess(role, cs, models.FeatureViewClinical, requesterID),
		CanExport:       policy.ExportAllowed(role, cs),
		CanRoute:        policy.CanAccess(role, cs, models.FeatureRouteProvider, requesterID),
		BlockedReason:   blocked.Reason,
	}
}

// admit runs the route guard for a protected route against the
// request's own identity and writes the failure response itself when
// that subject may not enter. The returned snapshot is the admitted
// subject's session and is only valid when ok is true.
func (h *V1Handler) admit(w http.ResponseWriter, r *http.Request, route string) (session.Snapshot, bool) {
	decision := h.guard.Check(r.Context(), route, middleware.GetIdentity(r.Context()))
	switch decision.Outcome {
	case middleware.OutcomeAdmit:
		return decision.Snapshot, true
	case middleware.OutcomeRedirectLogin:
		utils.RespondWithJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "authentication required",
			"redirect": "/login",
		})
	default:
		utils.RespondWithError(w, http.StatusForbidden, decision.Reason)
	}
	return session.Snapshot{}, false
}

// handleCases dispatches /api/v1/cases routes.
func (h *V1Handler) handleCases(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/cases")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	// Collection endpoint: GET /api/v1/cases?name= search
	if len(parts) == 1 && parts[0] == "" {
		if r.Method != http.MethodGet {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.searchCases(w, r)
		return
	}

	if parts[0] == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Case ID is required")
		return
	}
	caseID := parts[0]

	// GET /api/v1/cases/:caseId
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.getCase(w, r, caseID)
		return
	}

	if len(parts) == 2 {
		switch {
		case parts[1] == "display-name" && r.Method == http.MethodGet:
			h.getDisplayName(w, r, caseID)
			return
		case parts[1] == "export" && r.Method == http.MethodPost:
			h.exportCase(w, r, caseID)
			return
		case parts[1] == "route-provider" && r.Method == http.MethodPost:
			h.routeProvider(w, r, caseID)
			return
		case parts[1] == "providers" && r.Method == http.MethodPost:
			h.addProvider(w, r, caseID)
			return
		}
	}

	if len(parts) == 3 && parts[1] == "providers" && parts[2] == "swap" && r.Method == http.MethodPost {
		h.swapProvider(w, r, caseID)
		return
	}

	if len(parts) == 3 && parts[1] == "consent" && parts[2] == "revoke" && r.Method == http.MethodPost {
		h.revokeConsent(w, r, caseID)
		return
	}

	utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
}

// handleSession reads or ends the requesting subject's own session. An
// anonymous caller sees an anonymous snapshot; nobody can read another
// subject's identity, role or pending denial reason through this
// endpoint. The denial reason is consumed by the read.
func (h *V1Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())

	switch r.Method {
	case http.MethodGet:
		if id == nil {
			utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
				"state":   string(session.StateAnonymous),
				"loading": false,
			})
			return
		}

		snap := h.sessions.For(id).Snapshot()
		resp := map[string]interface{}{
			"state":      string(snap.State),
			"loading":    snap.Loading(),
			"identityId": id.ID,
			"role":       string(snap.PrimaryRole()),
		}
		if reason, ok := h.guard.TakeDenialReason(r.Context(), id.ID); ok {
			resp["denialReason"] = reason
		}
		utils.RespondWithJSON(w, http.StatusOK, resp)

	case http.MethodDelete:
		if id == nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		h.sessions.SignOut(id.ID)
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "signed out"})

	default:
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *V1Handler) getCase(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, ok := h.admit(w, r, "/api/v1/cases/:id")
	if !ok {
		return
	}

	cs, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Case not found")
			return
		}
		slog.Error("Failed to fetch case", "error", err, "caseId", caseID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, h.buildCaseView(snap.PrimaryRole(), cs, snap.Identity.ID))
}

func (h *V1Handler) getDisplayName(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, ok := h.admit(w, r, "/api/v1/cases/:id/display-name")
	if !ok {
		return
	}

	cs, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Case not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"displayName": policy.DisplayNameFor(snap.PrimaryRole(), cs, snap.Identity.ID),
	})
}

func (h *V1Handler) exportCase(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, ok := h.admit(w, r, "/api/v1/cases/:id/export")
	if !ok {
		return
	}
	role := snap.PrimaryRole()

	cs, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Case not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}

	if !policy.ExportAllowed(role, cs) {
		reason := "export is not permitted for this case"
		if cs.Status == models.CaseStatusHoldSensitive {
			reason = "case is on sensitive hold; export is disabled"
		}
		audit.LogEvent(r.Context(), audit.NewFailureRecord(
			string(models.ActionExport), snap.Identity.ID, role.String(), caseID, reason))
		utils.RespondWithError(w, http.StatusForbidden, reason)
		return
	}

	audit.LogEvent(r.Context(), audit.NewRecord(
		string(models.ActionExport), snap.Identity.ID, role.String(), caseID))
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status": "export queued",
		"caseId": caseID,
	})
}

type providerRequest struct {
	ProviderID string `json:"providerId"`
}

type swapRequest struct {
	FromProviderID string `json:"fromProviderId"`
	ToProviderID   string `json:"toProviderId"`
}

// requireRouting enforces the consent gate shared by all provider
// mutations and writes the failure response on denial.
func (h *V1Handler) requireRouting(w http.ResponseWriter, r *http.Request, route, caseID string) (session.Snapshot, models.CaseSnapshot, bool) {
	snap, ok := h.admit(w, r, route)
	if !ok {
		return session.Snapshot{}, models.CaseSnapshot{}, false
	}

	cs, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Case not found")
			return session.Snapshot{}, models.CaseSnapshot{}, false
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch case")
		return session.Snapshot{}, models.CaseSnapshot{}, false
	}

	if !policy.CanAccess(snap.PrimaryRole(), cs, models.FeatureRouteProvider, snap.Identity.ID) {
		reason := "provider routing is not authorized by the client's consent"
		if cs.Status == models.CaseStatusHoldSensitive {
			reason = "case is on sensitive hold; provider routing is disabled"
		}
		utils.RespondWithError(w, http.StatusForbidden, reason)
		return session.Snapshot{}, models.CaseSnapshot{}, false
	}
	return snap, cs, true
}

func (h *V1Handler) routeProvider(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, _, ok := h.requireRouting(w, r, "/api/v1/cases/:id/route-provider", caseID)
	if !ok {
		return
	}

	var req providerRequest
	if err := utils.ParseJSONRequest(r, &req); err != nil || req.ProviderID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	if err := h.cases.RouteProvider(r.Context(), caseID, req.ProviderID); err != nil {
		slog.Error("Failed to route provider", "error", err, "caseId", caseID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to route provider")
		return
	}

	record := audit.NewRecord(string(models.ActionProviderRouted), snap.Identity.ID, snap.PrimaryRole().String(), caseID)
	record.Detail = req.ProviderID
	audit.LogEvent(r.Context(), record)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":     string(models.CaseStatusRouted),
		"caseId":     caseID,
		"providerId": req.ProviderID,
	})
}

func (h *V1Handler) addProvider(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, _, ok := h.requireRouting(w, r, "/api/v1/cases/:id/providers", caseID)
	if !ok {
		return
	}

	var req providerRequest
	if err := utils.ParseJSONRequest(r, &req); err != nil || req.ProviderID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "providerId is required")
		return
	}

	if err := h.cases.AddProvider(r.Context(), caseID, req.ProviderID); err != nil {
		slog.Error("Failed to add provider", "error", err, "caseId", caseID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to add provider")
		return
	}

	record := audit.NewRecord(string(models.ActionProviderAdded), snap.Identity.ID, snap.PrimaryRole().String(), caseID)
	record.Detail = req.ProviderID
	audit.LogEvent(r.Context(), record)

	utils.RespondWithJSON(w, http.StatusCreated, map[string]string{
		"caseId":     caseID,
		"providerId": req.ProviderID,
	})
}

func (h *V1Handler) swapProvider(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, _, ok := h.requireRouting(w, r, "/api/v1/cases/:id/providers/swap", caseID)
	if !ok {
		return
	}

	var req swapRequest
	if err := utils.ParseJSONRequest(r, &req); err != nil || req.FromProviderID == "" || req.ToProviderID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "fromProviderId and toProviderId are required")
		return
	}

	if err := h.cases.SwapProvider(r.Context(), caseID, req.FromProviderID, req.ToProviderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Provider not found on case")
			return
		}
		slog.Error("Failed to swap provider", "error", err, "caseId", caseID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to swap provider")
		return
	}

	record := audit.NewRecord(string(models.ActionProviderSwapped), snap.Identity.ID, snap.PrimaryRole().String(), caseID)
	record.Detail = req.FromProviderID + " -> " + req.ToProviderID
	audit.LogEvent(r.Context(), record)

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"caseId":         caseID,
		"fromProviderId": req.FromProviderID,
		"toProviderId":   req.ToProviderID,
	})
}

func (h *V1Handler) revokeConsent(w http.ResponseWriter, r *http.Request, caseID string) {
	snap, ok := h.admit(w, r, "/api/v1/cases/:id/consent/revoke")
	if !ok {
		return
	}
	role := snap.PrimaryRole()

	cs, err := h.cases.GetCase(r.Context(), caseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Case not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to fetch case")
		return
	}

	// Consent belongs to the client: only the client on the case or an
	// elevated coordinator may revoke it.
	ownCase := role == models.RoleClient && cs.Client.RcmsID == snap.Identity.ID
	if !ownCase && !role.IsElevated() {
		utils.RespondWithError(w, http.StatusForbidden, "not authorized to revoke consent on this case")
		return
	}

	updated, err := h.cases.RevokeConsent(r.Context(), caseID)
	if err != nil {
		slog.Error("Failed to revoke consent", "error", err, "caseId", caseID)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to revoke consent")
		return
	}

	audit.LogEvent(r.Context(), audit.NewRecord(
		string(models.ActionConsentRevoked), snap.Identity.ID, role.String(), caseID))

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"caseId": updated.ID,
		"status": string(updated.Status),
	})
}

func (h *V1Handler) searchCases(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.admit(w, r, "/api/v1/cases")
	if !ok {
		return
	}
	role := snap.PrimaryRole()

	name := r.URL.Query().Get("name")
	if name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}

	if !policy.CanSearchByName(role) {
		utils.RespondWithError(w, http.StatusForbidden, "role may search by case identifier only")
		return
	}

	cases, err := h.cases.SearchByName(r.Context(), name)
	if err != nil {
		slog.Error("Case search failed", "error", err, "name", name)
		utils.RespondWithError(w, http.StatusInternalServerError, "Case search failed")
		return
	}

	views := make([]caseView, 0, len(cases))
	for _, cs := range cases {
		views = append(views, h.buildCaseView(role, cs, snap.Identity.ID))
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items": views,
		"count": len(views),
	})
}
