package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rcms-care/portal-backend/v1/models"
)

func TestMaskName(t *testing.T) {
	tests := []struct {
		name     string
		fullName string
		want     string
	}{
		{"first and last", "Alice Barnes", "Alice B."},
		{"three parts keep first and last initial", "Alice Mae Barnes", "Alice B."},
		{"single word", "Alice", "A."},
		{"empty", "", ""},
		{"extra whitespace", "  Alice   Barnes  ", "Alice B."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskName(tt.fullName))
		})
	}
}

func TestMaskName_Deterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		assert.Equal(t, "Alice B.", MaskName("Alice Barnes"))
	}
}

func TestDisplayNameFor(t *testing.T) {
	cs := openCase()

	t.Run("full access renders the full name", func(t *testing.T) {
		assert.Equal(t, "Alice Barnes", DisplayNameFor(models.RoleRNCM, cs, "nurse-1"))
		assert.Equal(t, "Alice Barnes", DisplayNameFor(models.RoleClient, cs, "rcms-100"))
	})

	t.Run("restricted case renders the fixed label", func(t *testing.T) {
		rcs := restrictedCase()
		assert.Equal(t, "Restricted", DisplayNameFor(models.RoleClient, rcs, "rcms-100"))
		assert.Equal(t, "Restricted", DisplayNameFor(models.RoleAttorney, rcs, "atty-1"))
		assert.Equal(t, "Alice Barnes", DisplayNameFor(models.RoleSuperAdmin, rcs, "admin-1"))
	})

	t.Run("sensitive hold without restricted flag masks the name", func(t *testing.T) {
		hcs := openCase()
		hcs.Status = models.CaseStatusHoldSensitive
		assert.Equal(t, "Alice B.", DisplayNameFor(models.RoleClient, hcs, "rcms-100"))
		assert.Equal(t, "Alice B.", DisplayNameFor(models.RoleAttorney, hcs, "atty-1"))
		assert.Equal(t, "Alice Barnes", DisplayNameFor(models.RoleRNCM, hcs, "nurse-1"))
	})

	t.Run("designated attorney bypasses the restriction", func(t *testing.T) {
		rcs := restrictedCase()
		rcs.DesignatedAttorneyID = "atty-9"
		assert.Equal(t, "Alice Barnes", DisplayNameFor(models.RoleAttorney, rcs, "atty-9"))
		assert.Equal(t, "Restricted", DisplayNameFor(models.RoleAttorney, rcs, "atty-2"))
	})
}

func TestDisplayNameFor_PseudonymFallback(t *testing.T) {
	cs := restrictedCase()
	cs.Consent.RestrictedAccess = false
	cs.Client.FullName = ""

	// Unknown role, no name: deterministic pseudonym, same value every time.
	first := DisplayNameFor(models.Role("CASE_WORKER"), cs, "u1")
	assert.Regexp(t, `^Client-[0-9A-F]{6}$`, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, DisplayNameFor(models.Role("CASE_WORKER"), cs, "u1"))
	}

	// A different client yields a different pseudonym.
	other := cs
	other.Client.RcmsID = "rcms-999"
	assert.NotEqual(t, first, DisplayNameFor(models.Role("CASE_WORKER"), other, "u1"))
}
