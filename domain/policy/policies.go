package policy

import (
	"context"
	"errors"
	"time"

	"roster/bizerror"
	"roster/persistence"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

var (
	// policies only change through template administration, a long cache is fine
	policyCache = cache.New(5*time.Minute, 1*time.Minute)

	LoadPolicyFunc = LoadPolicy
)

// LoadPolicy reads the policy of (template, action), going to the database on
// cache miss. A template without a policy row for the action is a deployment
// fault, reported as bizerror.ErrPolicyNotConfigured.
func LoadPolicy(ctx context.Context, templateID types.ID, actionKey string) (*PermissionPolicy, error) {
	key := templateID.String() + "/" + actionKey
	if value, found := policyCache.Get(key); found {
		if p, ok := value.(*PermissionPolicy); ok {
			return p, nil
		}
	}

	p := PermissionPolicy{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where(&PermissionPolicy{TemplateID: templateID, ActionKey: actionKey}).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrPolicyNotConfigured
		}
		return nil, err
	}

	policyCache.SetDefault(key, &p)
	return &p, nil
}

// Authorize evaluates actionKey for the session on a project of the given
// template, with projectRole being the actor's membership role on that
// project (empty for non-members).
func Authorize(s *session.Session, projectRole string, templateID types.ID, actionKey string) error {
	p, err := LoadPolicyFunc(s.Context, templateID, actionKey)
	if err != nil {
		return err
	}
	if Evaluate(RoleContext{ProjectRole: projectRole, PlatformRoles: s.Perms}, p) != Allow {
		return bizerror.ErrForbidden
	}
	return nil
}

// CachedPolicyEvict is for tests.
func CachedPolicyEvict() {
	policyCache.Flush()
}
