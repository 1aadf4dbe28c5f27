package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalRole(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Role
	}{
		{"already canonical", "ATTORNEY", RoleAttorney},
		{"lower case", "client", RoleClient},
		{"mixed case", "Staff", RoleStaff},
		{"whitespace trimmed", "  super_user  ", RoleSuperUser},
		{"alias rn_ccm", "rn_ccm", RoleRNCM},
		{"alias rn", "RN", RoleRNCM},
		{"alias rn_cm upper", "RN_CM", RoleRNCM},
		{"unknown passes through upper-cased", "case_worker", Role("CASE_WORKER")},
		{"garbage passes through", "zzz-whatever", Role("ZZZ-WHATEVER")},
		{"empty", "", Role("")},
		{"whitespace only", "   ", Role("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalRole(tt.raw))
		})
	}
}

func TestRole_IsValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"Client", RoleClient, true},
		{"Attorney", RoleAttorney, true},
		{"RN case manager", RoleRNCM, true},
		{"Compliance", RoleCompliance, true},
		{"passthrough role is not valid", Role("CASE_WORKER"), false},
		{"empty is not valid", Role(""), false},
		{"lower-case canonical is not valid", Role("client"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.IsValid())
		})
	}
}

func TestRole_IsElevated(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"RN case manager", RoleRNCM, true},
		{"RN supervisor", RoleRNCMSupervisor, true},
		{"Clinical management", RoleClinicalMgmt, true},
		{"Staff", RoleStaff, true},
		{"Super user", RoleSuperUser, true},
		{"Super admin", RoleSuperAdmin, true},
		{"Client is not elevated", RoleClient, false},
		{"Attorney is not elevated", RoleAttorney, false},
		{"Provider is not elevated", RoleProvider, false},
		{"External clinical staff is not elevated", RoleClinicalStaffExternal, false},
		{"Unknown role is not elevated", Role("CASE_WORKER"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.IsElevated())
		})
	}
}

func TestRole_CanExport(t *testing.T) {
	assert.True(t, RoleAttorney.CanExport())
	assert.True(t, RoleRNCM.CanExport())
	assert.True(t, RoleSuperAdmin.CanExport())
	assert.False(t, RoleClient.CanExport())
	assert.False(t, RoleProvider.CanExport())
	assert.False(t, Role("CASE_WORKER").CanExport())
}

func TestRole_CanSearchByName(t *testing.T) {
	assert.True(t, RoleAttorney.CanSearchByName())
	assert.True(t, RoleStaff.CanSearchByName())
	assert.False(t, RoleClient.CanSearchByName())
	assert.False(t, RoleProvider.CanSearchByName())
	assert.False(t, Role("").CanSearchByName())
}

func TestCaseSnapshot_SensitiveTagged(t *testing.T) {
	assert.True(t, CaseSnapshot{Consent: Consent{RestrictedAccess: true}}.SensitiveTagged())
	assert.True(t, CaseSnapshot{Status: CaseStatusHoldSensitive}.SensitiveTagged())
	assert.False(t, CaseSnapshot{Status: CaseStatusInProgress}.SensitiveTagged())
}
