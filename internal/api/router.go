package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/handlers"
	"github.com/talkbase/accounts/internal/middleware"
	"github.com/talkbase/accounts/internal/services"
)

// Deps bundles everything the router needs.
type Deps struct {
	DB      *gorm.DB
	Tokens  *iauth.TokenService
	Auth    *services.AuthService
	Users   *services.UserService
	Teams   *services.TeamService
	Invites *services.InviteService
	OTP     *services.OTPService
	Notify  *services.NotifyService
	Events  *events.Manager
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.FlushEvents(deps.Events))

	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tokenHandler := handlers.NewTokenHandler(deps.Auth)
	userHandler := handlers.NewUserHandler(deps.Users)
	teamHandler := handlers.NewTeamHandler(deps.Teams)
	inviteHandler := handlers.NewInviteHandler(deps.DB, deps.Invites)
	otpHandler := handlers.NewOTPHandler(deps.OTP)
	notifyHandler := handlers.NewNotifyHandler(deps.Notify)

	requireAuth := middleware.Auth(deps.Tokens)

	// Public routes: token grants, OTP, signup, password recovery, and
	// invite display for people without an account yet
	r.POST("/token", tokenHandler.Issue)
	r.POST("/otp", otpHandler.Request)
	r.POST("/users", middleware.OptionalAuth(deps.Tokens), userHandler.Register)
	r.PATCH("/users/password", userHandler.ResetPassword)
	r.GET("/invite-links/:id", inviteHandler.Get)

	// Authenticated routes
	auth := r.Group("")
	auth.Use(requireAuth)

	auth.GET("/token", tokenHandler.List)
	auth.DELETE("/token/:token", tokenHandler.Revoke)

	auth.GET("/users", userHandler.List)
	auth.GET("/users/:id", userHandler.Get)
	auth.PATCH("/users/:id", userHandler.Update)
	auth.DELETE("/users/:id", userHandler.Delete)

	auth.GET("/teams", teamHandler.List)
	auth.GET("/teams/:id", teamHandler.Get)
	auth.PATCH("/teams/:id", teamHandler.Update)
	auth.POST("/teams/join/:id", inviteHandler.Redeem)

	auth.POST("/invite-links", inviteHandler.Create)
	auth.GET("/invite-links", inviteHandler.List)
	auth.DELETE("/invite-links/:id", inviteHandler.Delete)

	auth.POST("/notify", middleware.RequireScopes("NOTIFICATIONS_SEND"), notifyHandler.Send)

	return r, nil
}
