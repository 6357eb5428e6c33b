package invite

import (
	"net/http"

	"roster/bizerror"
	"roster/domain"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var PathProjectMemberInvites = "/v1/projects/:projectId/member-invites"

// ManagerTraits is what the REST layer needs from the invite engine, split
// out so handler tests can stub it.
type ManagerTraits interface {
	CreateInvites(projectID types.ID, creation *InviteCreation, s *session.Session) (*InviteBatchResult, error)
	GetInvite(projectID, inviteID types.ID, s *session.Session) (*domain.ProjectMemberInvite, error)
	RespondToInvite(projectID, inviteID types.ID, response *InviteResponse, s *session.Session) (*domain.ProjectMemberInvite, error)
}

func RegisterProjectMemberInvitesRestAPI(r *gin.Engine, m ManagerTraits, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathProjectMemberInvites, middleWares...)
	g.POST("", buildHandleCreateInvites(m))
	g.GET("/:inviteId", buildHandleGetInvite(m))
	g.PATCH("/:inviteId", buildHandleRespondToInvite(m))
}

func buildHandleCreateInvites(m ManagerTraits) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := parsePathId(c, "projectId")
		creation := InviteCreation{}
		if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
			panic(err)
		}

		result, err := m.CreateInvites(projectID, &creation, session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		if len(result.Success) == 0 && len(result.Failed) > 0 {
			panic(&bizerror.ErrAllInvitesFailed{Failed: result.Failed})
		}
		c.JSON(http.StatusCreated, result)
	}
}

func buildHandleGetInvite(m ManagerTraits) gin.HandlerFunc {
	return func(c *gin.Context) {
		invite, err := m.GetInvite(parsePathId(c, "projectId"), parsePathId(c, "inviteId"),
			session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, invite)
	}
}

func buildHandleRespondToInvite(m ManagerTraits) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := InviteResponse{}
		if err := c.ShouldBindBodyWith(&response, binding.JSON); err != nil {
			panic(err)
		}

		invite, err := m.RespondToInvite(parsePathId(c, "projectId"), parsePathId(c, "inviteId"),
			&response, session.ExtractSessionFromGinContext(c))
		if err != nil {
			panic(err)
		}
		c.JSON(http.StatusOK, invite)
	}
}

func parsePathId(c *gin.Context, name string) types.ID {
	id, err := types.ParseID(c.Param(name))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return id
}
