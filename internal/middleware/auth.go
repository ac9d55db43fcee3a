package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxTeamIDKey = "teamID"
)

// Auth enforces bearer-token authentication using the supplied token service.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := tokens.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.User.ID)
		c.Set(CtxTeamIDKey, claims.User.TeamID)

		c.Next()
	}
}

// OptionalAuth verifies a bearer token when one is supplied but lets
// anonymous requests through. Used on endpoints like signup that behave
// differently for admins.
func OptionalAuth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
			if claims, err := tokens.Verify(strings.TrimSpace(authz[7:])); err == nil {
				c.Set(CtxClaimsKey, claims)
				c.Set(CtxUserIDKey, claims.User.ID)
				c.Set(CtxTeamIDKey, claims.User.TeamID)
			}
		}
		c.Next()
	}
}

// Claims extracts the verified token claims placed by Auth.
func Claims(c *gin.Context) *iauth.Claims {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*iauth.Claims)
	return claims
}

// RequireScopes rejects requests whose token carries none of the named
// scopes. Admin panel access always passes.
func RequireScopes(required ...scopes.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if claims.HasScope(scopes.AdminPanelAccess) {
			c.Next()
			return
		}

		if err := iauth.AssertScopes(claims, required...); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}
