package bizerror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("record not found")
	ErrInviteAlreadyResolved = errors.New("invite is no longer pending")
	ErrPolicyNotConfigured   = errors.New("permission policy not configured")
	ErrMemberSelfGrant       = errors.New("member can not grant for themselves")
	ErrLastManagerRemoval    = errors.New("the last manager of a project can not be removed")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string

	Data  interface{}
	Cause error
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	message := "common.bad_param"
	if e.Cause != nil {
		message = e.Cause.Error()
	}
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: message, Data: nil}
}

// ErrDependencyFailure a downstream collaborator (identity service, event bus)
// is unreachable or answered with an unexpected status. Safe to retry.
type ErrDependencyFailure struct {
	Service string
	Cause   error
}

func (e *ErrDependencyFailure) Unwrap() error {
	return e.Cause
}
func (e *ErrDependencyFailure) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Service, e.Cause)
}
func (e *ErrDependencyFailure) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusServiceUnavailable, Code: "common.dependency_unavailable",
		Message: e.Error(), Data: e.Service}
}

// ErrInviteRoleNotAllowed the actor asked to grant a role above their ceiling.
type ErrInviteRoleNotAllowed struct {
	Role string
}

func (e *ErrInviteRoleNotAllowed) Error() string {
	return "You are not allowed to invite user as " + e.Role
}
func (e *ErrInviteRoleNotAllowed) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusForbidden, Code: "invite.role_not_allowed",
		Message: e.Error(), Data: e.Role}
}

// ErrAllInvitesFailed every entry of an invite batch was rejected.
type ErrAllInvitesFailed struct {
	Failed interface{}
}

func (e *ErrAllInvitesFailed) Error() string {
	return "none of the requested invites could be created"
}
func (e *ErrAllInvitesFailed) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusForbidden, Code: "invite.batch_failed",
		Message: e.Error(), Data: e.Failed}
}
