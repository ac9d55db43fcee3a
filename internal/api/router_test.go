package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/talkbase/accounts/internal/auth"
	testutil "github.com/talkbase/accounts/internal/database/testutil"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/internal/subscription"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *iauth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAdminTeam())

	pair, err := iauth.GenerateKeyPair()
	require.NoError(t, err)
	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		PrivateKeyPEM: pair.PrivateKeyPEM,
		PublicKeyPEM:  pair.PublicKeyPEM,
	})
	require.NoError(t, err)

	refresh, err := iauth.NewRefreshService(db, iauth.RefreshConfig{})
	require.NoError(t, err)

	gate := subscription.NewStaticGate()
	bus := events.NewManager(nil)
	otpSvc := services.NewOTPService(db, nil)

	router, err := NewRouter(Deps{
		DB:      db,
		Tokens:  tokens,
		Auth:    services.NewAuthService(db, tokens, refresh, gate),
		Users:   services.NewUserService(db, otpSvc, gate, bus),
		Teams:   services.NewTeamService(db, bus),
		Invites: services.NewInviteService(db, gate, bus),
		OTP:     otpSvc,
		Notify:  services.NewNotifyService(db, nil, nil),
		Events:  bus,
	})
	require.NoError(t, err)

	return router, db, tokens
}

func adminToken(t *testing.T, db *gorm.DB, tokens *iauth.TokenService) string {
	t.Helper()

	var team models.Team
	require.NoError(t, db.Where("is_admin = ?", true).First(&team).Error)

	signed, err := tokens.Issue(iauth.TokenUser{
		ID:     team.CreatedBy,
		TeamID: team.ID,
	}, []scopes.Scope{scopes.AdminPanelAccess}, 0)
	require.NoError(t, err)
	return signed
}

func doJSON(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/users", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/teams", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouterProvisionAndLoginFlow(t *testing.T) {
	router, db, tokens := newTestRouter(t)
	admin := adminToken(t, db, tokens)

	// Admin-provisioned signup needs no OTP.
	w := doJSON(router, http.MethodPost, "/users", admin, gin.H{
		"fullName":    "Flow User",
		"phoneNumber": "31612345678",
		"password":    "super-secret",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	// Password grant against the new account.
	w = doJSON(router, http.MethodPost, "/token", "", gin.H{
		"phoneNumber": "31612345678",
		"password":    "super-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var grant struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grant))
	require.NotEmpty(t, grant.Data.AccessToken)
	require.NotEmpty(t, grant.Data.RefreshToken)

	// The access token works against protected routes.
	w = doJSON(router, http.MethodGet, "/users/"+created.Data.ID, grant.Data.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Refresh grant trades the refresh token for a new access token.
	w = doJSON(router, http.MethodPost, "/token", "", gin.H{
		"refreshToken": grant.Data.RefreshToken,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Wrong password stays a 401.
	w = doJSON(router, http.MethodPost, "/token", "", gin.H{
		"phoneNumber": "31612345678",
		"password":    "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
