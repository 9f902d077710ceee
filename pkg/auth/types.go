package auth

import "sort"

// Role represents a user's role. The set of roles is closed: every role the
// system knows about is declared here, and PermissionsFor switches over the
// full set so a new role cannot ship without a permission grant decision.
type Role string

const (
	// Platform-level roles. These are not bound to a firm.
	RolePlatformAdmin   Role = "platform_admin"
	RolePlatformSupport Role = "platform_support"

	// Firm-bound roles.
	RoleFirmAdmin Role = "admin"
	RoleAttorney  Role = "attorney"
	RoleParalegal Role = "paralegal"
	RoleStaff     Role = "staff"
)

// AllRoles lists every valid role.
func AllRoles() []Role {
	return []Role{
		RolePlatformAdmin,
		RolePlatformSupport,
		RoleFirmAdmin,
		RoleAttorney,
		RoleParalegal,
		RoleStaff,
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RolePlatformAdmin, RolePlatformSupport, RoleFirmAdmin, RoleAttorney, RoleParalegal, RoleStaff:
		return true
	}
	return false
}

// PlatformLevel reports whether r is scoped to the whole platform rather
// than a single firm.
func (r Role) PlatformLevel() bool {
	return r == RolePlatformAdmin || r == RolePlatformSupport
}

// Permission represents a fine-grained capability.
type Permission string

const (
	PermReadAllTenants  Permission = "read:all_tenants"
	PermWriteAllTenants Permission = "write:all_tenants"
	PermGhostMode       Permission = "ghost_mode"
	PermSystemConfig    Permission = "system_config"

	PermReadOwnTenant  Permission = "read:own_tenant"
	PermWriteOwnTenant Permission = "write:own_tenant"
	PermUserManagement Permission = "user_management"

	PermCaseRead      Permission = "case:read"
	PermCaseWrite     Permission = "case:write"
	PermDocumentRead  Permission = "document:read"
	PermDocumentWrite Permission = "document:write"
	PermBillingView   Permission = "billing:view"
)

// PermissionsFor returns the permission set granted by a role. The table is
// the single source of truth for privilege; callers must consult it on
// every check rather than caching the result across requests. Unknown roles
// get an empty set.
func PermissionsFor(role Role) map[Permission]struct{} {
	var perms []Permission
	switch role {
	case RolePlatformAdmin:
		perms = []Permission{
			PermReadAllTenants, PermWriteAllTenants,
			PermGhostMode, PermSystemConfig,
		}
	case RolePlatformSupport:
		perms = []Permission{PermReadAllTenants, PermGhostMode}
	case RoleFirmAdmin:
		perms = []Permission{
			PermReadOwnTenant, PermWriteOwnTenant, PermUserManagement,
			PermCaseRead, PermCaseWrite,
			PermDocumentRead, PermDocumentWrite,
			PermBillingView,
		}
	case RoleAttorney:
		perms = []Permission{
			PermReadOwnTenant, PermWriteOwnTenant,
			PermCaseRead, PermCaseWrite,
			PermDocumentRead, PermDocumentWrite,
		}
	case RoleParalegal:
		perms = []Permission{
			PermReadOwnTenant,
			PermCaseRead,
			PermDocumentRead, PermDocumentWrite,
		}
	case RoleStaff:
		perms = []Permission{PermReadOwnTenant, PermCaseRead, PermDocumentRead}
	}
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission checks the role→permission table directly.
func HasPermission(role Role, perm Permission) bool {
	_, ok := PermissionsFor(role)[perm]
	return ok
}

// Principal is the verified identity resolved for a single request. It is
// built fresh per request and never persisted.
type Principal struct {
	UserID      string                  `json:"user_id"`
	Email       string                  `json:"email"`
	Role        Role                    `json:"role"`
	FirmID      string                  `json:"firm_id,omitempty"`
	FirmSlug    string                  `json:"firm_slug,omitempty"`
	Permissions map[Permission]struct{} `json:"-"`

	// GhostFirmSlug is set when a platform operator is acting inside a
	// ghost session. While set, tenant-scope checks evaluate against the
	// impersonated firm instead of passing unconditionally.
	GhostFirmSlug string `json:"ghost_firm_slug,omitempty"`
}

// HasPermission reports whether the principal's role grants perm. The
// role→permission table is consulted fresh on every call.
func (p *Principal) HasPermission(perm Permission) bool {
	if p == nil {
		return false
	}
	return HasPermission(p.Role, perm)
}

// PlatformLevel reports whether the principal holds a platform-scoped role.
func (p *Principal) PlatformLevel() bool {
	return p != nil && p.Role.PlatformLevel()
}

// PermissionList returns the role's permissions as a sorted slice,
// convenient for embedding in token claims.
func PermissionList(role Role) []string {
	set := PermissionsFor(role)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
