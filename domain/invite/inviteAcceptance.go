package invite

import (
	"errors"
	"strings"

	"roster/bizerror"
	"roster/domain"
	"roster/domain/mask"
	"roster/domain/policy"
	"roster/idgen"
	"roster/indices"
	"roster/persistence"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
)

type InviteResponse struct {
	Decision string `json:"decision" binding:"required,oneof=accepted rejected"`
}

// GetInvite returns one invite with its email masked per the session's
// visibility. Invites the session may not see are reported as not found.
func (m *Manager) GetInvite(projectID, inviteID types.ID, s *session.Session) (*domain.ProjectMemberInvite, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}
	actorRole := findProjectRole(db, projectID, s.Identity.ID)
	if err := policy.Authorize(s, actorRole, project.TemplateID, policy.ActionInviteGet); err != nil {
		return nil, err
	}

	invite, err := m.findInvite(projectID, inviteID, s)
	if err != nil {
		return nil, err
	}
	if !isAddressee(invite, s) && !s.Perms.HasAdminRole() {
		return nil, bizerror.ErrNotFound
	}
	return mask.InviteEmail(invite, s), nil
}

// RespondToInvite resolves a PENDING invite. Accepting grants project
// membership in the same transaction; either decision clears the pending
// uniqueness slot so the identity can be invited again later.
func (m *Manager) RespondToInvite(projectID, inviteID types.ID, response *InviteResponse, s *session.Session) (*domain.ProjectMemberInvite, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)

	invite, err := m.findInvite(projectID, inviteID, s)
	if err != nil {
		return nil, err
	}
	if !isAddressee(invite, s) && !s.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}

	updated := domain.ProjectMemberInvite{}
	var member *domain.ProjectMember
	err = db.Transaction(func(tx *gorm.DB) error {
		// the search index may lag, decisions are made on the fresh row
		fresh := domain.ProjectMemberInvite{}
		if err := tx.Where("project_id = ? AND id = ?", projectID, inviteID).First(&fresh).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrNotFound
			}
			return err
		}
		if fresh.Status != domain.InviteStatusPending {
			return bizerror.ErrInviteAlreadyResolved
		}

		fresh.UpdateTime = types.CurrentTimestamp()
		fresh.PendingKey = nil

		if response.Decision == DecisionRejected {
			fresh.Status = domain.InviteStatusRejected
		} else {
			if fresh.UserID == nil && !strings.EqualFold(fresh.Email, s.Identity.Email) {
				// there is no platform identity to grant membership to
				return bizerror.ErrForbidden
			}
			fresh.Status = domain.InviteStatusAccepted

			uid := s.Identity.ID
			if fresh.UserID != nil {
				uid = *fresh.UserID
			} else {
				fresh.UserID = &uid
			}
			if fresh.Email == "" {
				fresh.Email = s.Identity.Email
			}

			count := 0
			if err := tx.Model(&domain.ProjectMember{}).
				Where("project_id = ? AND user_id = ?", projectID, uid).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				member = &domain.ProjectMember{
					ID:        idgen.NextID(m.idWorker),
					ProjectID: projectID,
					UserID:    uid,
					Role:      fresh.Role,

					CreatedBy:  s.Identity.ID,
					CreateTime: types.CurrentTimestamp(),
				}
				if err := tx.Create(member).Error; err != nil {
					return err
				}
			}
		}

		if err := tx.Save(&fresh).Error; err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifier.InviteUpdated(&updated, s)
	if member != nil {
		m.notifier.MemberAdded(member, s)
	}
	return mask.InviteEmail(&updated, s), nil
}

// findInvite reads from the search index first and falls back to the
// database when the index misses or fails.
func (m *Manager) findInvite(projectID, inviteID types.ID, s *session.Session) (*domain.ProjectMemberInvite, error) {
	indexed, err := indices.SearchInviteByIdFunc(s.Context, projectID, inviteID)
	if err != nil {
		logrus.Warnf("search invite %d of project %d failed, falling back to database: %v", inviteID, projectID, err)
	} else if indexed != nil {
		return indexed, nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	invite := domain.ProjectMemberInvite{}
	if err := db.Where("project_id = ? AND id = ?", projectID, inviteID).First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func isAddressee(invite *domain.ProjectMemberInvite, s *session.Session) bool {
	if invite.UserID != nil && *invite.UserID == s.Identity.ID {
		return true
	}
	return invite.Email != "" && strings.EqualFold(invite.Email, s.Identity.Email)
}
