package member

import (
	"errors"

	"roster/bizerror"
	"roster/domain"
	"roster/domain/policy"
	"roster/event"
	"roster/idgen"
	"roster/persistence"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	memberIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	QueryProjectMembersFunc = QueryProjectMembers
	AddProjectMemberFunc    = AddProjectMember
	RemoveProjectMemberFunc = RemoveProjectMember
)

func QueryProjectMembers(query domain.ProjectMemberQuery, s *session.Session) ([]domain.ProjectMember, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	project, err := loadProject(db, query.ProjectID)
	if err != nil {
		return nil, err
	}
	actorRole := findProjectRole(db, query.ProjectID, s.Identity.ID)
	if err := policy.Authorize(s, actorRole, project.TemplateID, policy.ActionMemberView); err != nil {
		return nil, err
	}

	members := []domain.ProjectMember{}
	if err := db.Where(&domain.ProjectMember{ProjectID: query.ProjectID}).Order("create_time ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// AddProjectMember grants membership directly, bypassing the invitation flow.
// Reserved to administrators, and never for the actor themselves.
func AddProjectMember(creation domain.ProjectMemberCreation, s *session.Session) (*domain.ProjectMember, error) {
	if !s.Perms.HasAdminRole() {
		return nil, bizerror.ErrForbidden
	}
	if creation.UserID == s.Identity.ID {
		return nil, bizerror.ErrMemberSelfGrant
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if _, err := loadProject(db, creation.ProjectID); err != nil {
		return nil, err
	}

	member := domain.ProjectMember{}
	err := db.Transaction(func(tx *gorm.DB) error {
		count := 0
		if err := tx.Model(&domain.ProjectMember{}).
			Where("project_id = ? AND user_id = ?", creation.ProjectID, creation.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &bizerror.ErrBadParam{Cause: errors.New("user is already a member of the project")}
		}

		member = domain.ProjectMember{
			ID:        idgen.NextID(memberIdWorker),
			ProjectID: creation.ProjectID,
			UserID:    creation.UserID,
			Role:      creation.Role,

			CreatedBy:  s.Identity.ID,
			CreateTime: types.CurrentTimestamp(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	event.Publish(s.Context, event.KindMemberAdded, event.SourceTypeMember, member.ID, member.ProjectID, &member, s.Identity)
	return &member, nil
}

// RemoveProjectMember soft deletes a membership. A project must keep at least
// one manager-tier member, so removing the last one is refused.
func RemoveProjectMember(deletion domain.ProjectMemberDeletion, s *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	project, err := loadProject(db, deletion.ProjectID)
	if err != nil {
		return err
	}
	actorRole := findProjectRole(db, deletion.ProjectID, s.Identity.ID)
	if err := policy.Authorize(s, actorRole, project.TemplateID, policy.ActionMemberDelete); err != nil {
		return err
	}

	member := domain.ProjectMember{}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ? AND user_id = ?", deletion.ProjectID, deletion.UserID).
			First(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return bizerror.ErrNotFound
			}
			return err
		}

		if domain.IsManagerTierRole(member.Role) {
			managers := 0
			if err := tx.Model(&domain.ProjectMember{}).
				Where("project_id = ? AND role IN (?)", deletion.ProjectID, domain.ManagerTierRoles).
				Count(&managers).Error; err != nil {
				return err
			}
			if managers <= 1 {
				return bizerror.ErrLastManagerRemoval
			}
		}

		return tx.Delete(&member).Error
	})
	if err != nil {
		return err
	}

	event.Publish(s.Context, event.KindMemberRemoved, event.SourceTypeMember, member.ID, member.ProjectID, &member, s.Identity)
	return nil
}

func loadProject(db *gorm.DB, projectID types.ID) (*domain.Project, error) {
	project := domain.Project{}
	if err := db.Where(&domain.Project{ID: projectID}).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func findProjectRole(db *gorm.DB, projectID, userID types.ID) string {
	member := domain.ProjectMember{}
	if err := db.Where(&domain.ProjectMember{ProjectID: projectID, UserID: userID}).First(&member).Error; err != nil {
		return ""
	}
	return member.Role
}
