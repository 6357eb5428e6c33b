package invite

import (
	"context"
	"errors"
	"strings"

	"roster/authority"
	"roster/bizerror"
	"roster/client/identity"
	"roster/domain"
	"roster/domain/mask"
	"roster/domain/policy"
	"roster/idgen"
	"roster/persistence"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/go-sql-driver/mysql"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

const (
	StatusCreated          = "created"
	StatusPartiallyCreated = "partially created"
)

// Machine-readable reasons of per-identity failures inside a batch. The
// attached messages stay human-facing and may change freely.
const (
	ReasonAlreadyMember       = "member.already_exists"
	ReasonAlreadyInvited      = "invite.already_pending"
	ReasonManagerRoleRequired = "invite.manager_platform_role_required"
)

const (
	msgHandleAlreadyMember  = "User with such handle is already a member of the team."
	msgEmailAlreadyMember   = "User with such email is already a member of the team."
	msgHandleAlreadyInvited = "User with such handle is already invited to this project."
	msgEmailAlreadyInvited  = "User with such email is already invited to this project."
	msgManagerRoleRequired  = "User cannot be added with a Manager role to the project"
)

type InviteCreation struct {
	Role    string     `json:"role" binding:"required,oneof=customer copilot manager account_manager"`
	UserIds []types.ID `json:"userIds"`
	Emails  []string   `json:"emails" binding:"omitempty,dive,email"`
}

type FailedInvite struct {
	UserID  *types.ID `json:"userId,omitempty"`
	Email   string    `json:"email,omitempty"`
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
}

// InviteBatchResult is the partial-success outcome of one creation batch.
type InviteBatchResult struct {
	Status  string                       `json:"status"`
	Success []domain.ProjectMemberInvite `json:"success"`
	Failed  []FailedInvite               `json:"failed"`
}

// IdentityClient is the slice of the platform identity service the invite
// engine depends on.
type IdentityClient interface {
	ResolveEmails(ctx context.Context, emails []string) ([]identity.User, error)
	GetPlatformRoles(ctx context.Context, userID types.ID) ([]string, error)
}

// Notifier receives domain changes after they are committed.
type Notifier interface {
	InviteCreated(invite *domain.ProjectMemberInvite, s *session.Session)
	InviteUpdated(invite *domain.ProjectMemberInvite, s *session.Session)
	MemberAdded(member *domain.ProjectMember, s *session.Session)
}

type Manager struct {
	identities IdentityClient
	notifier   Notifier
	idWorker   *sonyflake.Sonyflake
}

func NewManager(identities IdentityClient, notifier Notifier) *Manager {
	return &Manager{
		identities: identities,
		notifier:   notifier,
		idWorker:   sonyflake.NewSonyflake(sonyflake.Settings{}),
	}
}

// candidate is one requested identity, normalized: an explicit userId, an
// email resolved to a platform user (both set), or a bare email.
type candidate struct {
	userID    *types.ID
	email     string
	fromEmail bool
}

// CreateInvites runs one invitation batch. Authorization problems abort the
// whole request before any write; per-identity duplicate and role problems
// are collected into the failed list instead.
func (m *Manager) CreateInvites(projectID types.ID, creation *InviteCreation, s *session.Session) (*InviteBatchResult, error) {
	if len(creation.UserIds) == 0 && len(creation.Emails) == 0 {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("at least one of userIds and emails is required")}
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	project, err := loadProject(db, projectID)
	if err != nil {
		return nil, err
	}

	actorRole := findProjectRole(db, projectID, s.Identity.ID)
	if err := policy.Authorize(s, actorRole, project.TemplateID, policy.ActionInviteCreate); err != nil {
		return nil, err
	}
	if domain.IsManagerTierRole(creation.Role) && !s.Perms.HasManagerRole() {
		return nil, &bizerror.ErrInviteRoleNotAllowed{Role: creation.Role}
	}

	candidates, err := m.resolveCandidates(s.Context, creation)
	if err != nil {
		return nil, err
	}

	result := &InviteBatchResult{Success: []domain.ProjectMemberInvite{}, Failed: []FailedInvite{}}

	// a manager grant also requires the invited user itself to hold a
	// manager-tier platform role
	if creation.Role == domain.ProjectRoleManager || creation.Role == domain.ProjectRoleAccountManager {
		candidates, err = m.dropUnqualifiedManagers(s.Context, candidates, result)
		if err != nil {
			return nil, err
		}
	}

	created := []domain.ProjectMemberInvite{}
	err = db.Transaction(func(tx *gorm.DB) error {
		members := []domain.ProjectMember{}
		if err := tx.Where(&domain.ProjectMember{ProjectID: projectID}).Find(&members).Error; err != nil {
			return err
		}
		memberByUser := map[types.ID]bool{}
		for _, member := range members {
			memberByUser[member.UserID] = true
		}

		pending := []domain.ProjectMemberInvite{}
		if err := tx.Where("project_id = ? AND status = ?", projectID, domain.InviteStatusPending).
			Find(&pending).Error; err != nil {
			return err
		}
		pendingByKey := map[string]bool{}
		for _, p := range pending {
			pendingByKey[p.IdentityKey()] = true
			if p.Email != "" {
				pendingByKey["e:"+strings.ToLower(p.Email)] = true
			}
		}

		seen := map[string]bool{}
		for _, c := range candidates {
			key := domain.InviteIdentityKey(c.userID, c.email)
			if seen[key] {
				result.Failed = append(result.Failed, failedEntry(c, ReasonAlreadyInvited))
				continue
			}
			seen[key] = true

			if c.userID != nil && memberByUser[*c.userID] {
				result.Failed = append(result.Failed, failedEntry(c, ReasonAlreadyMember))
				continue
			}
			if pendingByKey[key] || (c.email != "" && pendingByKey["e:"+strings.ToLower(c.email)]) {
				result.Failed = append(result.Failed, failedEntry(c, ReasonAlreadyInvited))
				continue
			}

			pendingKey := key
			record := domain.ProjectMemberInvite{
				ID:        idgen.NextID(m.idWorker),
				ProjectID: projectID,
				UserID:    c.userID,
				Email:     c.email,

				Role:       creation.Role,
				Status:     domain.InviteStatusPending,
				PendingKey: &pendingKey,

				CreatedBy:  s.Identity.ID,
				CreateTime: types.CurrentTimestamp(),
				UpdateTime: types.CurrentTimestamp(),
			}
			if err := tx.Create(&record).Error; err != nil {
				if isDuplicateKeyError(err) {
					// a concurrent request won the race for this identity
					result.Failed = append(result.Failed, failedEntry(c, ReasonAlreadyInvited))
					continue
				}
				return err
			}
			created = append(created, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// one event per created invite, in creation order
	for i := range created {
		m.notifier.InviteCreated(&created[i], s)
	}

	result.Success = mask.InviteEmails(created, s)
	if len(result.Failed) == 0 {
		result.Status = StatusCreated
	} else {
		result.Status = StatusPartiallyCreated
	}
	return result, nil
}

func (m *Manager) resolveCandidates(ctx context.Context, creation *InviteCreation) ([]candidate, error) {
	candidates := make([]candidate, 0, len(creation.UserIds)+len(creation.Emails))
	for i := range creation.UserIds {
		uid := creation.UserIds[i]
		candidates = append(candidates, candidate{userID: &uid})
	}

	resolved, err := m.identities.ResolveEmails(ctx, creation.Emails)
	if err != nil {
		return nil, err
	}
	usersByEmail := map[string]identity.User{}
	for _, u := range resolved {
		usersByEmail[strings.ToLower(u.Email)] = u
	}
	for _, email := range creation.Emails {
		if u, found := usersByEmail[strings.ToLower(email)]; found {
			uid := u.ID
			candidates = append(candidates, candidate{userID: &uid, email: email, fromEmail: true})
		} else {
			candidates = append(candidates, candidate{email: email, fromEmail: true})
		}
	}
	return candidates, nil
}

func (m *Manager) dropUnqualifiedManagers(ctx context.Context, candidates []candidate, result *InviteBatchResult) ([]candidate, error) {
	remaining := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.userID == nil {
			remaining = append(remaining, c)
			continue
		}
		roles, err := m.identities.GetPlatformRoles(ctx, *c.userID)
		if err != nil {
			return nil, err
		}
		if !authority.Permissions(roles).HasManagerRole() {
			result.Failed = append(result.Failed, failedEntry(c, ReasonManagerRoleRequired))
			continue
		}
		remaining = append(remaining, c)
	}
	return remaining, nil
}

func failedEntry(c candidate, reason string) FailedInvite {
	f := FailedInvite{Reason: reason}
	if c.fromEmail {
		f.Email = c.email
	} else {
		f.UserID = c.userID
	}

	switch reason {
	case ReasonAlreadyMember:
		if c.fromEmail {
			f.Message = msgEmailAlreadyMember
		} else {
			f.Message = msgHandleAlreadyMember
		}
	case ReasonAlreadyInvited:
		if c.fromEmail {
			f.Message = msgEmailAlreadyInvited
		} else {
			f.Message = msgHandleAlreadyInvited
		}
	case ReasonManagerRoleRequired:
		f.Message = msgManagerRoleRequired
	}
	return f
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

// findProjectRole returns the actor's membership role on the project, empty
// when the actor is not a member.
func findProjectRole(db *gorm.DB, projectID, userID types.ID) string {
	member := domain.ProjectMember{}
	if err := db.Where(&domain.ProjectMember{ProjectID: projectID, UserID: userID}).First(&member).Error; err != nil {
		return ""
	}
	return member.Role
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
