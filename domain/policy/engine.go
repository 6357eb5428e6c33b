package policy

import (
	"strings"

	"roster/authority"
)

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// RoleContext is the actor's full role set for one project: the project role
// held through membership (empty when the actor is not a member) and the
// platform roles reported by the identity service.
type RoleContext struct {
	ProjectRole   string
	PlatformRoles authority.Permissions
}

// Evaluate decides one action for one actor. Deny matches win over allow
// matches, and an actor matching neither rule is denied. Pure function, safe
// for concurrent use.
func Evaluate(actor RoleContext, p *PermissionPolicy) Decision {
	if ruleMatches(actor, p.DenyRule) {
		return Deny
	}
	if ruleMatches(actor, p.AllowRule) {
		return Allow
	}
	return Deny
}

func ruleMatches(actor RoleContext, rule PolicyRule) bool {
	if actor.ProjectRole != "" {
		for _, r := range rule.ProjectRoles {
			if r == actor.ProjectRole {
				return true
			}
		}
	}
	for _, held := range actor.PlatformRoles {
		for _, r := range rule.TopcoderRoles {
			if strings.EqualFold(r, held) {
				return true
			}
		}
	}
	return false
}
