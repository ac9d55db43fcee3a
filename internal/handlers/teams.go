package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/middleware"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/services"
	"github.com/talkbase/accounts/pkg/response"
)

// TeamHandler exposes the team endpoints.
type TeamHandler struct {
	teams *services.TeamService
}

// NewTeamHandler builds the team endpoints.
func NewTeamHandler(teams *services.TeamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

// Get handles GET /teams/:id.
func (h *TeamHandler) Get(c *gin.Context) {
	team, err := h.teams.Get(
		c.Request.Context(),
		middleware.Claims(c),
		c.Param("id"),
		c.Query("includeMembers") == "true",
		c.Query("includeInviteLinks") == "true",
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// List handles GET /teams.
func (h *TeamHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	var ids []string
	if raw := strings.TrimSpace(c.Query("id")); raw != "" {
		ids = strings.Split(raw, ",")
	}

	teams, err := h.teams.List(c.Request.Context(), middleware.Claims(c), services.ListTeamsQuery{
		Q:                  c.Query("q"),
		IDs:                ids,
		UserID:             c.Query("userId"),
		Page:               page,
		PageSize:           pageSize,
		IncludeMembers:     c.Query("includeMembers") == "true",
		IncludeInviteLinks: c.Query("includeInviteLinks") == "true",
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, teams, &response.Meta{
		Page:    page,
		PerPage: pageSize,
	})
}

type memberPatchRequest struct {
	UserID string         `json:"userId" validate:"required"`
	Scopes []scopes.Scope `json:"scopes"`
	Delete bool           `json:"delete"`
}

type updateTeamRequest struct {
	Name                *string              `json:"name" validate:"omitempty,max=64"`
	Metadata            map[string]any       `json:"metadata"`
	Members             []memberPatchRequest `json:"members" validate:"dive"`
	DeleteInviteLinkIDs []string             `json:"deleteInviteLinks"`
}

// Update handles PATCH /teams/:id.
func (h *TeamHandler) Update(c *gin.Context) {
	var req updateTeamRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	members := make([]services.MemberPatch, len(req.Members))
	for i, m := range req.Members {
		members[i] = services.MemberPatch{UserID: m.UserID, Scopes: m.Scopes, Delete: m.Delete}
	}

	team, err := h.teams.Update(c.Request.Context(), middleware.Claims(c), c.Param("id"), services.UpdateTeamInput{
		Name:                req.Name,
		Metadata:            req.Metadata,
		Members:             members,
		DeleteInviteLinkIDs: req.DeleteInviteLinkIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}
