package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/talkbase/accounts/internal/middleware"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/services"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/response"
)

// UserHandler exposes the user lifecycle endpoints.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler builds the user endpoints.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type registerRequest struct {
	FullName     string                    `json:"fullName" validate:"required,max=100"`
	PhoneNumber  string                    `json:"phoneNumber" validate:"required,numeric,min=7,max=20"`
	Password     string                    `json:"password" validate:"required,min=8,max=64"`
	EmailAddress *string                   `json:"emailAddress" validate:"omitempty,email"`
	Notify       *models.NotifyPreferences `json:"notify"`
	OTP          int                       `json:"otp"`
}

// Register handles POST /users. Anonymous callers sign up with an OTP;
// platform admins may provision users directly.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), middleware.Claims(c), services.RegisterInput{
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		Password:     req.Password,
		EmailAddress: req.EmailAddress,
		Notify:       req.Notify,
		OTP:          req.OTP,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// List handles GET /users.
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))

	users, err := h.users.List(c.Request.Context(), middleware.Claims(c), services.ListUsersQuery{
		Q:        c.Query("q"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{
		Page:    page,
		PerPage: pageSize,
	})
}

type updateUserRequest struct {
	FullName     *string                   `json:"fullName" validate:"omitempty,max=100"`
	EmailAddress *string                   `json:"emailAddress" validate:"omitempty,email"`
	Notify       *models.NotifyPreferences `json:"notify"`
	PhoneNumber  *string                   `json:"phoneNumber" validate:"omitempty,numeric,min=7,max=20"`
	Password     *string                   `json:"password" validate:"omitempty,min=8,max=64"`
}

// Update handles PATCH /users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Update(c.Request.Context(), middleware.Claims(c), c.Param("id"), services.UpdateUserInput{
		FullName:     req.FullName,
		EmailAddress: req.EmailAddress,
		Notify:       req.Notify,
		PhoneNumber:  req.PhoneNumber,
		Password:     req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

type resetPasswordRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,numeric,min=7,max=20"`
	OTP         int    `json:"otp" validate:"required"`
	Password    string `json:"password" validate:"required,min=8,max=64"`
}

// ResetPassword handles PATCH /users/password. Authorised by OTP, not by a
// bearer token, so locked-out users can recover.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	err := h.users.ResetPassword(c.Request.Context(), req.PhoneNumber, req.OTP, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.users.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
