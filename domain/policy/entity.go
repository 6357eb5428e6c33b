package policy

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/fundwit/go-commons/types"
)

// Action keys evaluated against template policies.
const (
	ActionInviteCreate = "projectMemberInvite.create"
	ActionInviteGet    = "projectMemberInvite.get"
	ActionMemberView   = "projectMember.view"
	ActionMemberDelete = "projectMember.delete"
)

// PolicyRule names the role combinations one side of a policy matches, over
// both axes: project-scoped roles and platform-wide roles.
type PolicyRule struct {
	ProjectRoles  []string `json:"projectRoles"`
	TopcoderRoles []string `json:"topcoderRoles"`
}

func (r PolicyRule) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *PolicyRule) Scan(value interface{}) error {
	if value == nil {
		*r = PolicyRule{}
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, r)
	case string:
		return json.Unmarshal([]byte(data), r)
	default:
		return errors.New("unsupported source type of policy rule")
	}
}

// PermissionPolicy is the allow/deny rule pair governing one action for one
// project template. Rows are immutable at request time.
type PermissionPolicy struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	TemplateID types.ID `json:"templateId" gorm:"unique_index:uni_template_action" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ActionKey  string   `json:"actionKey" gorm:"unique_index:uni_template_action" sql:"type:VARCHAR(128) NOT NULL"`

	AllowRule PolicyRule `json:"allowRule" sql:"type:JSON"`
	DenyRule  PolicyRule `json:"denyRule" sql:"type:JSON"`
}

func (p *PermissionPolicy) TableName() string {
	return "permission_policies"
}
