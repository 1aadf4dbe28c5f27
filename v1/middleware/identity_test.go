package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcms-care/portal-backend/v1/models"
	"github.com/rcms-care/portal-backend/v1/session"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"empty token", "Bearer   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentityMiddleware_AttachesAndWarmsSession(t *testing.T) {
	reg := registryFor(t, &stubResolver{
		roles: map[string][]models.Role{"u1": {models.RoleAttorney}},
	})
	m := NewIdentityMiddleware(reg)

	var seen *session.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	token := signToken(t, jwt.MapClaims{
		"sub":   "u1",
		"email": "alice@rcms.example",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	m.Attach(next).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.ID)
	assert.Equal(t, "alice@rcms.example", seen.Email)

	// The subject's own session machine is already resolving.
	sessions := reg.For(seen)
	require.NotNil(t, sessions)
	require.True(t, sessions.AwaitSettled(context.Background(), time.Second))
	snap := sessions.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "u1", snap.Identity.ID)
	assert.Equal(t, models.RoleAttorney, snap.PrimaryRole())
}

func TestIdentityMiddleware_AnonymousPassesThrough(t *testing.T) {
	reg := registryFor(t, &stubResolver{})
	m := NewIdentityMiddleware(reg)

	var seen *session.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	m.Attach(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, seen, "no header means an anonymous request, not an error")
}

func TestIdentityMiddleware_MalformedTokenPassesThrough(t *testing.T) {
	reg := registryFor(t, &stubResolver{})
	m := NewIdentityMiddleware(reg)

	var seen *session.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	rr := httptest.NewRecorder()
	m.Attach(next).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, seen)
}

func TestIdentityMiddleware_TokenWithoutSubjectRejected(t *testing.T) {
	reg := registryFor(t, &stubResolver{})
	m := NewIdentityMiddleware(reg)

	var seen *session.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
	})

	token := signToken(t, jwt.MapClaims{"email": "nobody@rcms.example"})
	r := httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Attach(next).ServeHTTP(httptest.NewRecorder(), r)
	assert.Nil(t, seen, "a token with no subject yields no identity")
}
