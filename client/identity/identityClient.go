package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"roster/authority"
	"roster/bizerror"
	"roster/misc"

	"github.com/fundwit/go-commons/types"
)

// User is a platform user record as the identity service reports it.
type User struct {
	ID     types.ID `json:"id"`
	Handle string   `json:"handle"`
	Email  string   `json:"email"`
}

// Principal is the authenticated caller behind a bearer token.
type Principal struct {
	ID    types.ID              `json:"id"`
	Name  string                `json:"name"`
	Email string                `json:"email"`
	Roles authority.Permissions `json:"roles"`
}

var (
	ResolveEmailsFunc    = ResolveEmails
	GetPlatformRolesFunc = GetPlatformRoles
	AuthenticateFunc     = Authenticate
)

// Client adapts the package-level functions for callers taking the identity
// service as an injected dependency.
type Client struct {
}

func (Client) ResolveEmails(ctx context.Context, emails []string) ([]User, error) {
	return ResolveEmailsFunc(ctx, emails)
}

func (Client) GetPlatformRoles(ctx context.Context, userID types.ID) ([]string, error) {
	return GetPlatformRolesFunc(ctx, userID)
}

// ServiceURL IDENTITY_SERVICE_URL
func ServiceURL() string {
	return strings.TrimSuffix(os.Getenv("IDENTITY_SERVICE_URL"), "/")
}

// ResolveEmails batch-resolves email addresses to existing platform users.
// Unknown addresses are simply absent from the result.
func ResolveEmails(ctx context.Context, emails []string) ([]User, error) {
	if len(emails) == 0 {
		return []User{}, nil
	}

	reqBody, err := json.Marshal(map[string][]string{"emails": emails})
	if err != nil {
		return nil, err
	}
	respBody, err := misc.HttpInvokeJson(ctx, http.MethodPost, ServiceURL()+"/v1/users/search-by-emails", nil, string(reqBody))
	if err != nil {
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}

	users := []User{}
	if err := json.Unmarshal([]byte(respBody), &users); err != nil {
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}
	return users, nil
}

// GetPlatformRoles loads the platform-wide roles of a user.
func GetPlatformRoles(ctx context.Context, userID types.ID) ([]string, error) {
	respBody, err := misc.HttpInvokeJson(ctx, http.MethodGet, ServiceURL()+"/v1/users/"+userID.String()+"/roles", nil, "")
	if err != nil {
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}

	roles := []string{}
	if err := json.Unmarshal([]byte(respBody), &roles); err != nil {
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}
	return roles, nil
}

// Authenticate verifies a bearer token and returns the caller's identity with
// its platform roles.
func Authenticate(ctx context.Context, token string) (*Principal, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	respBody, err := misc.HttpInvokeJson(ctx, http.MethodGet, ServiceURL()+"/v1/authorizations/current", headers, "")
	if err != nil {
		var invokeErr *misc.ErrHttpInvoke
		if errors.As(err, &invokeErr) && (invokeErr.StatusCode == http.StatusUnauthorized || invokeErr.StatusCode == http.StatusForbidden) {
			return nil, bizerror.ErrUnauthenticated
		}
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}

	principal := Principal{}
	if err := json.Unmarshal([]byte(respBody), &principal); err != nil {
		return nil, &bizerror.ErrDependencyFailure{Service: "identity", Cause: err}
	}
	return &principal, nil
}
