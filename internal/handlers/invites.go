package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/middleware"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/services"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/response"
)

// InviteHandler exposes the invite link endpoints.
type InviteHandler struct {
	db      *gorm.DB
	invites *services.InviteService
}

// NewInviteHandler builds the invite endpoints.
func NewInviteHandler(db *gorm.DB, invites *services.InviteService) *InviteHandler {
	return &InviteHandler{db: db, invites: invites}
}

type createInviteRequest struct {
	TeamID string         `json:"teamId" validate:"required"`
	Scopes []scopes.Scope `json:"scopes" validate:"required,min=1"`
}

// Create handles POST /invite-links.
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	invite, err := h.invites.Create(c.Request.Context(), middleware.Claims(c), req.TeamID, req.Scopes)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invite)
}

// Get handles GET /invite-links/:id. Public: an invite is shared with
// people who do not have an account yet.
func (h *InviteHandler) Get(c *gin.Context) {
	invite, err := h.invites.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invite)
}

// List handles GET /invite-links?teamId=.
func (h *InviteHandler) List(c *gin.Context) {
	teamID := c.Query("teamId")
	if teamID == "" {
		response.Error(c, apperrors.NewBadRequest("teamId is required"))
		return
	}

	invites, err := h.invites.List(c.Request.Context(), middleware.Claims(c), teamID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invites)
}

// Redeem handles POST /teams/join/:id: converts an invite into a
// membership for the authenticated caller.
func (h *InviteHandler) Redeem(c *gin.Context) {
	claims := middleware.Claims(c)

	var user models.User
	err := h.db.WithContext(c.Request.Context()).Take(&user, "id = ?", claims.User.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if err != nil {
		response.Error(c, fmt.Errorf("load redeeming user: %w", err))
		return
	}

	member, err := h.invites.Redeem(c.Request.Context(), &user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, member)
}

// Delete handles DELETE /invite-links/:id?teamId=.
func (h *InviteHandler) Delete(c *gin.Context) {
	teamID := c.Query("teamId")
	if teamID == "" {
		response.Error(c, apperrors.NewBadRequest("teamId is required"))
		return
	}

	if err := h.invites.Delete(c.Request.Context(), middleware.Claims(c), teamID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
