package domain

import (
	"strings"

	"github.com/fundwit/go-commons/types"
)

const (
	InviteStatusPending  = "PENDING"
	InviteStatusAccepted = "ACCEPTED"
	InviteStatusRejected = "REJECTED"
)

// ProjectMemberInvite is a pending offer of membership. Exactly one of
// UserID/Email identifies the recipient at creation time; Email is backfilled
// when an email invite is resolved to a platform user.
//
// PendingKey carries the normalized identity while the invite is PENDING and
// is cleared on resolution. The unique index on (project_id, pending_key)
// guarantees a single PENDING invite per identity even under concurrent
// creation; resolved invites have a NULL key and never collide.
type ProjectMemberInvite struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	ProjectID types.ID  `json:"projectId" gorm:"unique_index:uni_project_pending" sql:"type:BIGINT UNSIGNED NOT NULL"`
	UserID    *types.ID `json:"userId,omitempty" sql:"type:BIGINT UNSIGNED"`
	Email     string    `json:"email,omitempty"`

	Role   string `json:"role"`
	Status string `json:"status"`

	PendingKey *string `json:"-" gorm:"unique_index:uni_project_pending" sql:"type:VARCHAR(320)"`

	CreatedBy  types.ID        `json:"createdBy"`
	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
}

// InviteIdentityKey normalizes an invite identity: userId invites compare
// exactly, email invites compare case-insensitively.
func InviteIdentityKey(userID *types.ID, email string) string {
	if userID != nil && *userID != 0 {
		return "u:" + (*userID).String()
	}
	return "e:" + strings.ToLower(email)
}

func (i *ProjectMemberInvite) IdentityKey() string {
	return InviteIdentityKey(i.UserID, i.Email)
}
