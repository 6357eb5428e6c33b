package member

import (
	"net/http"

	"roster/domain"
	"roster/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var PathProjectMembers = "/v1/project-members"

func RegisterProjectMembersRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathProjectMembers, middleWares...)
	g.GET("", handleQueryProjectMembers)
	g.POST("", handleAddProjectMember)
	g.DELETE("", handleRemoveProjectMember)
}

func handleQueryProjectMembers(c *gin.Context) {
	query := domain.ProjectMemberQuery{}
	if err := c.ShouldBindQuery(&query); err != nil {
		panic(err)
	}

	members, err := QueryProjectMembersFunc(query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, members)
}

func handleAddProjectMember(c *gin.Context) {
	creation := domain.ProjectMemberCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(err)
	}

	member, err := AddProjectMemberFunc(creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, member)
}

func handleRemoveProjectMember(c *gin.Context) {
	deletion := domain.ProjectMemberDeletion{}
	if err := c.ShouldBindQuery(&deletion); err != nil {
		panic(err)
	}

	if err := RemoveProjectMemberFunc(deletion, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.AbortWithStatus(http.StatusNoContent)
}
