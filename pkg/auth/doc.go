// Package auth defines the identity model shared by the authentication
// core: the closed role enumeration, the static role→permission table, and
// the Principal type produced per request by the identity extractor.
//
// The permission table is the single source of truth for privilege. Checks
// go through PermissionsFor / HasPermission so a role change takes effect
// on the next request without any cache invalidation.
package auth
