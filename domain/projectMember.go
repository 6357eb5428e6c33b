package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// ProjectMember is one active membership of a user on a project. Removal is a
// soft delete, so historic rows stay queryable; at most one row per
// (projectId, userId) may be alive at a time.
type ProjectMember struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	ProjectID types.ID `json:"projectId" gorm:"index:idx_project" sql:"type:BIGINT UNSIGNED NOT NULL"`
	UserID    types.ID `json:"userId" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Role      string `json:"role"`
	IsPrimary bool   `json:"isPrimary"`

	CreatedBy  types.ID        `json:"createdBy"`
	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`

	DeletedAt *time.Time `json:"-" sql:"index"`
}

type ProjectMemberCreation struct {
	ProjectID types.ID `json:"projectId" binding:"required"`
	UserID    types.ID `json:"userId" binding:"required"`
	Role      string   `json:"role" binding:"required,oneof=customer copilot manager account_manager"`
}

type ProjectMemberQuery struct {
	ProjectID types.ID `form:"projectId" binding:"required"`
}

type ProjectMemberDeletion struct {
	ProjectID types.ID `form:"projectId" binding:"required"`
	UserID    types.ID `form:"userId" binding:"required"`
}
