package invite_test

import (
	"context"
	"errors"
	"strings"

	"roster/authority"
	"roster/bizerror"
	"roster/client/identity"
	"roster/domain"
	"roster/domain/invite"
	"roster/domain/policy"
	"roster/event"
	"roster/indices"
	"roster/persistence"
	"roster/session"
	"roster/testinfra"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type fakeIdentityClient struct {
	usersByEmail map[string]identity.User
	rolesByUser  map[types.ID][]string
}

func (f *fakeIdentityClient) ResolveEmails(ctx context.Context, emails []string) ([]identity.User, error) {
	users := []identity.User{}
	for _, email := range emails {
		if u, found := f.usersByEmail[strings.ToLower(email)]; found {
			users = append(users, u)
		}
	}
	return users, nil
}

func (f *fakeIdentityClient) GetPlatformRoles(ctx context.Context, userID types.ID) ([]string, error) {
	return f.rolesByUser[userID], nil
}

type recordingNotifier struct {
	createdInvites []domain.ProjectMemberInvite
	updatedInvites []domain.ProjectMemberInvite
	addedMembers   []domain.ProjectMember
}

func (r *recordingNotifier) InviteCreated(i *domain.ProjectMemberInvite, s *session.Session) {
	r.createdInvites = append(r.createdInvites, *i)
}
func (r *recordingNotifier) InviteUpdated(i *domain.ProjectMemberInvite, s *session.Session) {
	r.updatedInvites = append(r.updatedInvites, *i)
}
func (r *recordingNotifier) MemberAdded(m *domain.ProjectMember, s *session.Session) {
	r.addedMembers = append(r.addedMembers, *m)
}

var _ = Describe("invites", func() {
	var (
		testDatabase *testinfra.TestDatabase
		identities   *fakeIdentityClient
		notifier     *recordingNotifier
		manager      *invite.Manager
	)

	testProject := types.ID(1000)
	testTemplate := types.ID(10)

	BeforeEach(func() {
		testDatabase = testinfra.StartMysqlTestDatabase("roster")
		persistence.ActiveDataSourceManager = testDatabase.DS
		Expect(testDatabase.DS.GormDB(context.TODO()).AutoMigrate(
			&domain.Project{}, &domain.ProjectMember{}, &domain.ProjectMemberInvite{},
			&policy.PermissionPolicy{}, &event.EventRecord{}).Error).To(BeNil())

		db := testDatabase.DS.GormDB(context.TODO())
		Expect(db.Create(&domain.Project{ID: testProject, Name: "demo", Status: domain.ProjectStatusActive,
			TemplateID: testTemplate, CreatorID: 1, CreateTime: types.CurrentTimestamp()}).Error).To(BeNil())
		Expect(db.Create(&policy.PermissionPolicy{ID: 1, TemplateID: testTemplate, ActionKey: policy.ActionInviteCreate,
			AllowRule: policy.PolicyRule{
				ProjectRoles:  []string{domain.ProjectRoleCustomer, domain.ProjectRoleManager, domain.ProjectRoleCopilot},
				TopcoderRoles: authority.ManagerRoles,
			}}).Error).To(BeNil())
		Expect(db.Create(&policy.PermissionPolicy{ID: 2, TemplateID: testTemplate, ActionKey: policy.ActionInviteGet,
			AllowRule: policy.PolicyRule{
				ProjectRoles:  []string{domain.ProjectRoleCustomer, domain.ProjectRoleManager, domain.ProjectRoleCopilot},
				TopcoderRoles: []string{authority.RoleTopcoderUser, authority.RoleAdministrator},
			}}).Error).To(BeNil())
		policy.CachedPolicyEvict()

		// decide on database rows, the search index stays out of these cases
		indices.SearchInviteByIdFunc = func(ctx context.Context, projectID, inviteID types.ID) (*domain.ProjectMemberInvite, error) {
			return nil, nil
		}

		identities = &fakeIdentityClient{usersByEmail: map[string]identity.User{}, rolesByUser: map[types.ID][]string{}}
		notifier = &recordingNotifier{}
		manager = invite.NewManager(identities, notifier)
	})
	AfterEach(func() {
		indices.SearchInviteByIdFunc = indices.SearchInviteById
		testinfra.StopMysqlTestDatabase(testDatabase)
	})

	memberSession := func(uid types.ID, role string) *session.Session {
		db := testDatabase.DS.GormDB(context.TODO())
		Expect(db.Create(&domain.ProjectMember{ID: uid, ProjectID: testProject, UserID: uid, Role: role,
			CreatedBy: 1, CreateTime: types.CurrentTimestamp()}).Error).To(BeNil())
		return testinfra.BuildSecCtx(uid, authority.RoleTopcoderUser)
	}

	Describe("CreateInvites", func() {
		It("should reject an empty batch", func() {
			s := memberSession(20, domain.ProjectRoleCustomer)
			_, err := manager.CreateInvites(testProject, &invite.InviteCreation{Role: domain.ProjectRoleCustomer}, s)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(Equal("at least one of userIds and emails is required"))
		})

		It("should be forbidden for actors without a matching policy role", func() {
			s := testinfra.BuildSecCtx(20, authority.RoleTopcoderUser)
			_, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, UserIds: []types.ID{30}}, s)
			Expect(err).To(Equal(bizerror.ErrForbidden))
		})

		It("should create invites for userIds and emails", func() {
			identities.usersByEmail["known@test.com"] = identity.User{ID: 40, Handle: "known", Email: "known@test.com"}
			s := memberSession(20, domain.ProjectRoleCustomer)

			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role:    domain.ProjectRoleCustomer,
				UserIds: []types.ID{30},
				Emails:  []string{"known@test.com", "stranger@test.com"},
			}, s)
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(invite.StatusCreated))
			Expect(len(result.Success)).To(Equal(3))
			Expect(len(result.Failed)).To(BeZero())

			Expect(*result.Success[0].UserID).To(Equal(types.ID(30)))
			Expect(result.Success[0].Status).To(Equal(domain.InviteStatusPending))

			// resolved email carries the platform user id
			Expect(*result.Success[1].UserID).To(Equal(types.ID(40)))
			Expect(result.Success[1].Email).To(Equal("k**n@test.com"))
			Expect(result.Success[2].UserID).To(BeNil())
			Expect(result.Success[2].Email).To(Equal("s**r@test.com"))

			// rows keep the clear addresses
			rows := []domain.ProjectMemberInvite{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Where("project_id = ?", testProject).Order("id ASC").Find(&rows).Error).To(BeNil())
			Expect(len(rows)).To(Equal(3))
			Expect(rows[1].Email).To(Equal("known@test.com"))
			Expect(*rows[1].PendingKey).To(Equal("u:40"))
			Expect(*rows[2].PendingKey).To(Equal("e:stranger@test.com"))

			Expect(len(notifier.createdInvites)).To(Equal(3))
			Expect(notifier.createdInvites[0].ID).To(Equal(result.Success[0].ID))
		})

		It("should collect duplicates as failed entries", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Create(&domain.ProjectMember{ID: 31, ProjectID: testProject, UserID: 31,
				Role: domain.ProjectRoleCustomer, CreatedBy: 1, CreateTime: types.CurrentTimestamp()}).Error).To(BeNil())
			s := memberSession(20, domain.ProjectRoleCustomer)

			first, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, Emails: []string{"duplicate_uppercase@test.com"}}, s)
			Expect(err).To(BeNil())
			Expect(first.Status).To(Equal(invite.StatusCreated))

			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role:    domain.ProjectRoleCustomer,
				UserIds: []types.ID{31, 32, 32},
				Emails:  []string{"DUPLICATE_UPPERCASE@test.com"},
			}, s)
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(invite.StatusPartiallyCreated))
			Expect(len(result.Success)).To(Equal(1))
			Expect(*result.Success[0].UserID).To(Equal(types.ID(32)))
			Expect(len(result.Failed)).To(Equal(3))

			Expect(*result.Failed[0].UserID).To(Equal(types.ID(31)))
			Expect(result.Failed[0].Reason).To(Equal(invite.ReasonAlreadyMember))
			Expect(result.Failed[0].Message).To(Equal("User with such handle is already a member of the team."))

			// second occurrence of userId 32 within the batch
			Expect(*result.Failed[1].UserID).To(Equal(types.ID(32)))
			Expect(result.Failed[1].Reason).To(Equal(invite.ReasonAlreadyInvited))

			// email duplicates compare case-insensitively
			Expect(result.Failed[2].Email).To(Equal("DUPLICATE_UPPERCASE@test.com"))
			Expect(result.Failed[2].Reason).To(Equal(invite.ReasonAlreadyInvited))
			Expect(result.Failed[2].Message).To(Equal("User with such email is already invited to this project."))

			// one event per created invite only
			Expect(len(notifier.createdInvites)).To(Equal(2))
		})

		It("should refuse manager grants from actors without a manager platform role", func() {
			s := memberSession(20, domain.ProjectRoleCustomer)
			_, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleManager, UserIds: []types.ID{30}}, s)

			var roleErr *bizerror.ErrInviteRoleNotAllowed
			Expect(errors.As(err, &roleErr)).To(BeTrue())
			Expect(roleErr.Error()).To(Equal("You are not allowed to invite user as manager"))
			Expect(len(notifier.createdInvites)).To(BeZero())
		})

		It("should fail manager grants for invitees without a manager platform role", func() {
			identities.rolesByUser[30] = []string{authority.RoleConnectManager}
			identities.rolesByUser[31] = []string{authority.RoleTopcoderUser}
			s := testinfra.BuildSecCtx(20, authority.RoleConnectManager)

			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleManager, UserIds: []types.ID{30, 31}}, s)
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(invite.StatusPartiallyCreated))
			Expect(len(result.Success)).To(Equal(1))
			Expect(*result.Success[0].UserID).To(Equal(types.ID(30)))

			Expect(len(result.Failed)).To(Equal(1))
			Expect(result.Failed[0].Reason).To(Equal(invite.ReasonManagerRoleRequired))
			Expect(result.Failed[0].Message).To(Equal("User cannot be added with a Manager role to the project"))
		})

		It("should report the loser of a concurrent creation race as already invited", func() {
			s := memberSession(20, domain.ProjectRoleCustomer)
			db := testDatabase.DS.GormDB(context.Background())

			// a competing request commits the same identity between this
			// batch's duplicate snapshot and its own insert
			raced := false
			db.Callback().Create().Before("gorm:create").Register("competingCreation", func(scope *gorm.Scope) {
				if _, ok := scope.Value.(*domain.ProjectMemberInvite); !ok || raced {
					return
				}
				raced = true
				key := domain.InviteIdentityKey(nil, "contested@test.com")
				Expect(db.New().Create(&domain.ProjectMemberInvite{
					ID: 7777, ProjectID: testProject, Email: "contested@test.com",
					Role: domain.ProjectRoleCustomer, Status: domain.InviteStatusPending, PendingKey: &key,
					CreatedBy: 99, CreateTime: types.CurrentTimestamp(), UpdateTime: types.CurrentTimestamp(),
				}).Error).To(BeNil())
			})
			defer db.Callback().Create().Remove("competingCreation")

			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, Emails: []string{"contested@test.com"}}, s)
			Expect(err).To(BeNil())
			Expect(raced).To(BeTrue())

			Expect(len(result.Success)).To(BeZero())
			Expect(len(result.Failed)).To(Equal(1))
			Expect(result.Failed[0].Email).To(Equal("contested@test.com"))
			Expect(result.Failed[0].Reason).To(Equal(invite.ReasonAlreadyInvited))
			Expect(len(notifier.createdInvites)).To(BeZero())

			// exactly one PENDING row survives, the competing one
			rows := []domain.ProjectMemberInvite{}
			Expect(db.Where("project_id = ? AND email = ?", testProject, "contested@test.com").
				Find(&rows).Error).To(BeNil())
			Expect(len(rows)).To(Equal(1))
			Expect(rows[0].ID).To(Equal(types.ID(7777)))
		})

		It("should report not found for an unknown project", func() {
			s := testinfra.BuildSecCtx(20, authority.RoleAdministrator)
			_, err := manager.CreateInvites(types.ID(99999), &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, UserIds: []types.ID{30}}, s)
			Expect(err).To(Equal(bizerror.ErrNotFound))
		})
	})

	Describe("GetInvite", func() {
		It("should mask the email for non-privileged viewers and hide foreign invites", func() {
			creator := memberSession(20, domain.ProjectRoleCustomer)
			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, Emails: []string{"user30@test.com"}}, creator)
			Expect(err).To(BeNil())
			inviteID := result.Success[0].ID

			// the recipient sees the clear address
			recipient := testinfra.BuildSecCtx(30, authority.RoleTopcoderUser)
			found, err := manager.GetInvite(testProject, inviteID, recipient)
			Expect(err).To(BeNil())
			Expect(found.Email).To(Equal("user30@test.com"))

			// an administrator sees it too
			admin := testinfra.BuildSecCtx(40, authority.RoleAdministrator)
			found, err = manager.GetInvite(testProject, inviteID, admin)
			Expect(err).To(BeNil())
			Expect(found.Email).To(Equal("user30@test.com"))

			// anyone else is told the invite does not exist
			_, err = manager.GetInvite(testProject, inviteID, testinfra.BuildSecCtx(50, authority.RoleTopcoderUser))
			Expect(err).To(Equal(bizerror.ErrNotFound))
		})
	})

	Describe("RespondToInvite", func() {
		createInvite := func(target types.ID) types.ID {
			s := memberSession(20, domain.ProjectRoleCustomer)
			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, UserIds: []types.ID{target}}, s)
			Expect(err).To(BeNil())
			Expect(len(result.Success)).To(Equal(1))
			return result.Success[0].ID
		}

		It("should grant membership on acceptance", func() {
			inviteID := createInvite(30)
			recipient := testinfra.BuildSecCtx(30, authority.RoleTopcoderUser)

			updated, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionAccepted}, recipient)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(domain.InviteStatusAccepted))

			db := testDatabase.DS.GormDB(context.TODO())
			row := domain.ProjectMemberInvite{}
			Expect(db.Where("id = ?", inviteID).First(&row).Error).To(BeNil())
			Expect(row.Status).To(Equal(domain.InviteStatusAccepted))
			Expect(row.PendingKey).To(BeNil())

			member := domain.ProjectMember{}
			Expect(db.Where("project_id = ? AND user_id = ?", testProject, types.ID(30)).First(&member).Error).To(BeNil())
			Expect(member.Role).To(Equal(domain.ProjectRoleCustomer))

			Expect(len(notifier.updatedInvites)).To(Equal(1))
			Expect(len(notifier.addedMembers)).To(Equal(1))
			Expect(notifier.addedMembers[0].UserID).To(Equal(types.ID(30)))
		})

		It("should not grant membership on rejection", func() {
			inviteID := createInvite(30)
			recipient := testinfra.BuildSecCtx(30, authority.RoleTopcoderUser)

			updated, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionRejected}, recipient)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(domain.InviteStatusRejected))

			db := testDatabase.DS.GormDB(context.TODO())
			count := 0
			Expect(db.Model(&domain.ProjectMember{}).
				Where("project_id = ? AND user_id = ?", testProject, types.ID(30)).Count(&count).Error).To(BeNil())
			Expect(count).To(BeZero())
			Expect(len(notifier.addedMembers)).To(BeZero())
		})

		It("should conflict when the invite is already resolved", func() {
			inviteID := createInvite(30)
			recipient := testinfra.BuildSecCtx(30, authority.RoleTopcoderUser)

			_, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionAccepted}, recipient)
			Expect(err).To(BeNil())

			_, err = manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionRejected}, recipient)
			Expect(err).To(Equal(bizerror.ErrInviteAlreadyResolved))
		})

		It("should allow inviting the identity again once resolved", func() {
			inviteID := createInvite(30)
			recipient := testinfra.BuildSecCtx(30, authority.RoleTopcoderUser)
			_, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionRejected}, recipient)
			Expect(err).To(BeNil())

			s := testinfra.BuildSecCtx(20, authority.RoleTopcoderUser)
			result, err := manager.CreateInvites(testProject, &invite.InviteCreation{
				Role: domain.ProjectRoleCustomer, UserIds: []types.ID{30}}, s)
			Expect(err).To(BeNil())
			Expect(result.Status).To(Equal(invite.StatusCreated))
		})

		It("should be forbidden for sessions not addressed by the invite", func() {
			inviteID := createInvite(30)
			intruder := testinfra.BuildSecCtx(50, authority.RoleTopcoderUser)

			_, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionAccepted}, intruder)
			Expect(err).To(Equal(bizerror.ErrForbidden))
		})

		It("should let administrators resolve on behalf of the recipient", func() {
			inviteID := createInvite(30)
			admin := testinfra.BuildSecCtx(40, authority.RoleAdministrator)

			updated, err := manager.RespondToInvite(testProject, inviteID,
				&invite.InviteResponse{Decision: invite.DecisionAccepted}, admin)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(domain.InviteStatusAccepted))

			// membership goes to the invited user, not the administrator
			db := testDatabase.DS.GormDB(context.TODO())
			member := domain.ProjectMember{}
			Expect(db.Where("project_id = ? AND user_id = ?", testProject, types.ID(30)).First(&member).Error).To(BeNil())
		})
	})
})
