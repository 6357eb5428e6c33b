package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	ProjectStatusDraft     = "draft"
	ProjectStatusInReview  = "in_review"
	ProjectStatusReviewed  = "reviewed"
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
)

// Project roles are membership-scoped: a user holds at most one per project.
const (
	ProjectRoleCustomer       = "customer"
	ProjectRoleCopilot        = "copilot"
	ProjectRoleManager        = "manager"
	ProjectRoleAccountManager = "account_manager"
)

// ManagerTierRoles may only be granted by actors holding a manager-tier
// platform role.
var ManagerTierRoles = []string{ProjectRoleManager, ProjectRoleAccountManager, ProjectRoleCopilot}

func IsManagerTierRole(role string) bool {
	for _, r := range ManagerTierRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Project struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	Name       string   `json:"name"`
	Status     string   `json:"status"`
	TemplateID types.ID `json:"templateId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	CreatorID  types.ID        `json:"creatorId"`
	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`

	DeletedAt *time.Time `json:"-" sql:"index"`
}
