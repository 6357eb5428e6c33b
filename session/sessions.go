package session

import (
	"errors"
	"strings"
	"time"

	"roster/bizerror"
	"roster/client/identity"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const TokenExpiration = 10 * time.Minute

var TokenCache = cache.New(TokenExpiration, 1*time.Minute)

const KeySecCtx = "SecCtx"
const KeySecToken = "sec_token"

func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return &Session{Context: ctx.Request.Context()}
	}
	s0, ok := value.(*Session)
	if !ok || s0.Token == "" {
		return &Session{Context: ctx.Request.Context()}
	}
	s := s0.Clone()
	s.Context = ctx.Request.Context() // trace context
	return &s
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil && s.Token != "" {
		ctx.Set(KeySecCtx, s)
	}
}

// AuthFilter authenticates the bearer token against the identity service,
// caching verified sessions for TokenExpiration.
func AuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := extractToken(ctx)
		if token == "" {
			panic(bizerror.ErrUnauthenticated)
		}

		if value, found := TokenCache.Get(token); found {
			if s, ok := value.(*Session); ok {
				InjectSessionIntoGinContext(ctx, s)
				ctx.Next()
				return
			}
		}

		principal, err := identity.AuthenticateFunc(ctx.Request.Context(), token)
		if err != nil {
			var depErr *bizerror.ErrDependencyFailure
			if errors.As(err, &depErr) {
				panic(err)
			}
			panic(bizerror.ErrUnauthenticated)
		}

		s := &Session{
			Token:       token,
			Identity:    Identity{ID: principal.ID, Name: principal.Name, Email: principal.Email},
			Perms:       principal.Roles,
			SigningTime: time.Now(),
		}
		TokenCache.SetDefault(token, s)
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func extractToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	token, _ := ctx.Cookie(KeySecToken)
	return token
}
