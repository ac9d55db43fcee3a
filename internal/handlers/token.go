package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/middleware"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/pkg/response"
)

// TokenHandler exposes the token grant and session management endpoints.
type TokenHandler struct {
	auth *services.AuthService
}

// NewTokenHandler builds the token endpoints.
func NewTokenHandler(auth *services.AuthService) *TokenHandler {
	return &TokenHandler{auth: auth}
}

type tokenRequest struct {
	PhoneNumber  string         `json:"phoneNumber"`
	Password     string         `json:"password"`
	RefreshToken string         `json:"refreshToken"`
	TeamID       string         `json:"teamId"`
	Scopes       []scopes.Scope `json:"scopes"`
	// ExpiryMinutes overrides the default token lifetime when positive.
	ExpiryMinutes int `json:"expiryMinutes" validate:"omitempty,min=1,max=1440"`
}

// Issue handles POST /token: password or refresh-token grant.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req tokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	grant, err := h.auth.IssueToken(c.Request.Context(), services.TokenRequest{
		PhoneNumber:  req.PhoneNumber,
		Password:     req.Password,
		RefreshToken: req.RefreshToken,
		TeamID:       req.TeamID,
		Scopes:       req.Scopes,
		TTL:          time.Duration(req.ExpiryMinutes) * time.Minute,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, grant)
}

// List handles GET /token: the caller's active refresh tokens.
func (h *TokenHandler) List(c *gin.Context) {
	claims := middleware.Claims(c)

	tokens, err := h.auth.ListRefreshTokens(c.Request.Context(), claims.User.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokens)
}

// Revoke handles DELETE /token/:token: logs one session out.
func (h *TokenHandler) Revoke(c *gin.Context) {
	claims := middleware.Claims(c)

	if err := h.auth.RevokeRefreshToken(c.Request.Context(), claims.User.ID, c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
