package authority

import "strings"

// Platform-wide role names sourced from the identity service. Matching is
// case-insensitive.
const (
	RoleAdministrator  = "administrator"
	RoleConnectAdmin   = "Connect Admin"
	RoleConnectManager = "Connect Manager"
	RoleTopcoderUser   = "Topcoder User"
)

// ManagerRoles are the platform roles entitled to grant manager-tier
// project roles.
var ManagerRoles = []string{RoleAdministrator, RoleConnectAdmin, RoleConnectManager}

// AdminRoles see unmasked email addresses and may act on behalf of any
// invite recipient.
var AdminRoles = []string{RoleAdministrator, RoleConnectAdmin}

type Permissions []string

func (c Permissions) HasRole(role string) bool {
	for _, v := range c {
		if strings.EqualFold(v, role) {
			return true
		}
	}
	return false
}

func (c Permissions) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

func (c Permissions) HasManagerRole() bool {
	return c.HasAnyRole(ManagerRoles...)
}

func (c Permissions) HasAdminRole() bool {
	return c.HasAnyRole(AdminRoles...)
}
