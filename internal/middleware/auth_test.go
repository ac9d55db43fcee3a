package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/scopes"
)

func newTestTokens(t *testing.T) *iauth.TokenService {
	t.Helper()

	pair, err := iauth.GenerateKeyPair()
	require.NoError(t, err)

	svc, err := iauth.NewTokenService(iauth.TokenConfig{
		PrivateKeyPEM: pair.PrivateKeyPEM,
		PublicKeyPEM:  pair.PublicKeyPEM,
	})
	require.NoError(t, err)
	return svc
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := newTestTokens(t)

	signed, err := tokens.Issue(iauth.TokenUser{
		ID:     "user-123",
		TeamID: "team-abc",
	}, []scopes.Scope{"WA_STATE"}, 0)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Auth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserIDKey),
			"team_id": c.GetString(CtxTeamIDKey),
		})
	})

	// Missing Authorization header -> 401
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token -> 401
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token -> downstream handler executes
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
	require.Equal(t, "team-abc", payload["team_id"])
}

func TestRequireScopesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := newTestTokens(t)

	r := gin.New()
	r.GET("/gated", Auth(tokens), RequireScopes("NOTIFICATIONS_SEND"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	issue := func(granted ...scopes.Scope) string {
		signed, err := tokens.Issue(iauth.TokenUser{ID: "user-123", TeamID: "team-abc"}, granted, 0)
		require.NoError(t, err)
		return signed
	}

	// Token without the scope -> 403
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+issue("WA_STATE"))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Token with the scope -> 200
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+issue("NOTIFICATIONS_SEND"))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Admin panel access bypasses the gate
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/gated", nil)
	req.Header.Set("Authorization", "Bearer "+issue(scopes.AdminPanelAccess))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tokens := newTestTokens(t)

	r := gin.New()
	r.GET("/open", OptionalAuth(tokens), func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.JSON(http.StatusOK, gin.H{"user_id": claims.User.ID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": ""})
	})

	// Anonymous request passes through
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// A valid token is picked up
	signed, err := tokens.Issue(iauth.TokenUser{ID: "user-123"}, nil, 0)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-123", payload["user_id"])
}
