package models

import "strings"

// Role represents a canonical user role in the portal.
// Roles are always upper-cased internally; case-insensitive comparison
// happens only at the boundary, inside CanonicalRole.
type Role string

const (
	RoleClient                Role = "CLIENT"
	RoleAttorney              Role = "ATTORNEY"
	RoleRNCM                  Role = "RN_CM" // RCMS internal nurse case managers
	RoleRNCMSupervisor        Role = "RN_CM_SUPERVISOR"
	RoleProvider              Role = "PROVIDER"
	RoleStaff                 Role = "STAFF"
	RoleSuperUser             Role = "SUPER_USER"
	RoleSuperAdmin            Role = "SUPER_ADMIN"
	RoleClinicalMgmt          Role = "RCMS_CLINICAL_MGMT" // clinical supervisors/managers
	RoleClinicalStaffExternal Role = "CLINICAL_STAFF_EXTERNAL"
	RoleCompliance            Role = "COMPLIANCE"
)

// knownRoles is the closed enumeration the policy engine recognizes.
var knownRoles = map[Role]bool{
	RoleClient:                true,
	RoleAttorney:              true,
	RoleRNCM:                  true,
	RoleRNCMSupervisor:        true,
	RoleProvider:              true,
	RoleStaff:                 true,
	RoleSuperUser:             true,
	RoleSuperAdmin:            true,
	RoleClinicalMgmt:          true,
	RoleClinicalStaffExternal: true,
	RoleCompliance:            true,
}

// rawRoleAliases maps legacy raw role strings from the backing store to
// canonical roles. Raw values not in this table are upper-cased verbatim
// (a deliberate fail-open passthrough at the fetcher boundary; the policy
// engine stays fail-closed for anything it does not recognize).
var rawRoleAliases = map[string]Role{
	"rn_cm":  RoleRNCM,
	"rn_ccm": RoleRNCM,
	"rn":     RoleRNCM,
}

// CanonicalRole maps a raw role string from the backing store to its
// canonical form. This is the single place where case folding happens;
// everything downstream compares canonical Role values only.
func CanonicalRole(raw string) Role {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if role, ok := rawRoleAliases[strings.ToLower(trimmed)]; ok {
		return role
	}
	return Role(strings.ToUpper(trimmed))
}

// elevatedRoles may see clinical and identity fields on cases flagged
// for restricted access.
var elevatedRoles = map[Role]bool{
	RoleRNCM:           true,
	RoleRNCMSupervisor: true,
	RoleClinicalMgmt:   true,
	RoleStaff:          true,
	RoleSuperUser:      true,
	RoleSuperAdmin:     true,
}

// exportRoles may export case data, consent and status permitting.
var exportRoles = map[Role]bool{
	RoleAttorney:   true,
	RoleRNCM:       true,
	RoleStaff:      true,
	RoleSuperUser:  true,
	RoleSuperAdmin: true,
}

// nameSearchRoles have case-wide visibility and may search by client
// name. Everyone else searches by case identifier only.
var nameSearchRoles = map[Role]bool{
	RoleAttorney:   true,
	RoleRNCM:       true,
	RoleStaff:      true,
	RoleSuperUser:  true,
	RoleSuperAdmin: true,
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is part of the closed enumeration.
// Passthrough roles from the fetcher are not valid and carry no
// privileges anywhere in the policy engine.
func (r Role) IsValid() bool {
	return knownRoles[r]
}

// IsElevated reports whether the role bypasses restricted-access masking.
func (r Role) IsElevated() bool {
	return elevatedRoles[r]
}

// CanExport reports whether the role is in the export-capable set.
// This is role membership only; ExportAllowed applies the case gates.
func (r Role) CanExport() bool {
	return exportRoles[r]
}

// CanSearchByName reports whether the role may search cases by client name.
func (r Role) CanSearchByName() bool {
	return nameSearchRoles[r]
}
