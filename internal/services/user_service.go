package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/subscription"
	"github.com/talkbase/accounts/pkg/crypto"
	apperrors "github.com/talkbase/accounts/pkg/errors"
)

// RegisterInput describes a signup request. OTP is required for self-service
// signups and ignored for admin-provisioned ones.
type RegisterInput struct {
	FullName     string
	PhoneNumber  string
	Password     string
	EmailAddress *string
	Notify       *models.NotifyPreferences
	OTP          int
}

// UpdateUserInput carries a partial user update. Nil fields are untouched.
// PhoneNumber and Password changes are reserved for platform admins.
type UpdateUserInput struct {
	FullName     *string
	EmailAddress *string
	Notify       *models.NotifyPreferences
	PhoneNumber  *string
	Password     *string
}

// ListUsersQuery filters and paginates the user listing.
type ListUsersQuery struct {
	Q        string
	Page     int
	PageSize int
}

// UserService owns the user lifecycle: signup with its personal team,
// reads, partial updates, password reset, and the deletion cascade.
type UserService struct {
	db     *gorm.DB
	otp    *OTPService
	gate   subscription.Gate
	events *events.Manager
}

// NewUserService wires the user lifecycle.
func NewUserService(db *gorm.DB, otp *OTPService, gate subscription.Gate, bus *events.Manager) *UserService {
	return &UserService{db: db, otp: otp, gate: gate, events: bus}
}

// Register creates a user together with their personal team and membership
// in one transaction. Self-service signups must present a valid OTP, which
// is consumed atomically; callers holding admin panel access may provision
// users directly. The billing service is told about the new team afterwards,
// best effort.
func (s *UserService) Register(ctx context.Context, claims *auth.Claims, input RegisterInput) (*models.User, error) {
	adminProvisioned := claims != nil && claims.HasScope(scopes.AdminPanelAccess)

	phoneNumber := strings.TrimSpace(input.PhoneNumber)
	if phoneNumber == "" || input.FullName == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("fullName, phoneNumber and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	notify := models.NotifyPreferences{}
	if input.Notify != nil {
		notify = *input.Notify
	}

	user := &models.User{
		FullName:        input.FullName,
		PhoneNumber:     phoneNumber,
		EmailAddress:    input.EmailAddress,
		Password:        hashed,
		Notify:          datatypes.NewJSONType(notify),
		CreatedByMethod: models.CreatedByOTP,
	}
	if adminProvisioned {
		user.CreatedByMethod = models.CreatedByAdminPanel
	}

	var team *models.Team
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Unscoped().Model(&models.User{}).Where("phone_number = ?", phoneNumber).Count(&count).Error; err != nil {
			return fmt.Errorf("check duplicate phone: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("An account with this phone number already exists")
		}

		if !adminProvisioned {
			if err := s.otp.Consume(ctx, tx, phoneNumber, input.OTP); err != nil {
				return err
			}
		}

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		team = &models.Team{
			CreatedBy: user.ID,
			Metadata:  datatypes.JSONMap{},
			Name:      fmt.Sprintf("%s's team", input.FullName),
		}
		if err := tx.Create(team).Error; err != nil {
			return fmt.Errorf("create personal team: %w", err)
		}

		member := &models.TeamMember{
			TeamID: team.ID,
			UserID: user.ID,
			Scopes: datatypes.NewJSONSlice(scopes.AllUser()),
		}
		if claims != nil {
			member.AddedBy = &claims.User.ID
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("create membership: %w", err)
		}

		user.LastUsedTeamID = &team.ID
		return tx.Model(user).Update("last_used_team_id", team.ID).Error
	})
	if err != nil {
		return nil, err
	}

	if s.gate != nil {
		s.gate.AcknowledgeNewTeam(ctx, tokenUserFor(user, team.ID), team.ID)
	}

	s.emitChange(ctx, "user", events.ActionInsert, user)
	s.emitChange(ctx, "team", events.ActionInsert, team)

	return user, nil
}

// Get returns a user record. Non-admins can only read themselves.
func (s *UserService) Get(ctx context.Context, claims *auth.Claims, id string) (*models.User, error) {
	if id != claims.User.ID && !claims.HasScope(scopes.AdminPanelAccess) {
		return nil, apperrors.NewForbidden("You can only access your own account")
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}
	return &user, nil
}

// List returns users matching the query. Non-admins only ever see their own
// record, whatever they ask for.
func (s *UserService) List(ctx context.Context, claims *auth.Claims, query ListUsersQuery) ([]models.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})

	if !claims.HasScope(scopes.AdminPanelAccess) {
		q = q.Where("id = ?", claims.User.ID)
	} else if search := strings.TrimSpace(query.Q); search != "" {
		pattern := "%" + search + "%"
		q = q.Where("full_name LIKE ? OR phone_number LIKE ?", pattern, pattern)
	}

	page, pageSize := normalisePage(query.Page, query.PageSize)

	var users []models.User
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}

// Update applies a partial user update. Users may edit their own profile;
// phone number and password changes require admin panel access.
func (s *UserService) Update(ctx context.Context, claims *auth.Claims, id string, input UpdateUserInput) (*models.User, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)
	if id != claims.User.ID && !isAdmin {
		return nil, apperrors.NewForbidden("You can only update your own account")
	}
	if (input.PhoneNumber != nil || input.Password != nil) && !isAdmin {
		return nil, apperrors.NewForbidden("Only platform admins may change phone numbers or passwords directly")
	}

	updates := map[string]any{}
	if input.FullName != nil {
		updates["full_name"] = *input.FullName
	}
	if input.EmailAddress != nil {
		updates["email_address"] = *input.EmailAddress
	}
	if input.Notify != nil {
		updates["notify"] = datatypes.NewJSONType(*input.Notify)
	}
	if input.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.Password != nil {
		hashed, err := crypto.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		updates["password"] = hashed
	}
	if len(updates) == 0 {
		return nil, apperrors.NewBadRequest("Nothing to update")
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	s.emitChange(ctx, "user", events.ActionUpdate, &user)
	return &user, nil
}

// ResetPassword sets a new password after OTP verification. The OTP is
// consumed in the same transaction as the password write.
func (s *UserService) ResetPassword(ctx context.Context, phoneNumber string, otp int, newPassword string) error {
	if newPassword == "" {
		return apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.otp.Consume(ctx, tx, phoneNumber, otp); err != nil {
			return err
		}

		result := tx.Model(&models.User{}).
			Where("phone_number = ?", phoneNumber).
			Update("password", hashed)
		if result.Error != nil {
			return fmt.Errorf("update password: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFound("User not found")
		}
		return nil
	})
}

// Delete removes a user and everything they created: their teams disappear
// with all memberships and invites, while teams they merely joined only
// lose their membership row. Admins may delete anyone, users themselves.
func (s *UserService) Delete(ctx context.Context, claims *auth.Claims, id string) error {
	if id != claims.User.ID && !claims.HasScope(scopes.AdminPanelAccess) {
		return apperrors.NewForbidden("You can only delete your own account")
	}

	var deletedTeamIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Take(&user, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("User not found")
		}
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}

		var createdTeams []models.Team
		if err := tx.Where("created_by = ?", id).Find(&createdTeams).Error; err != nil {
			return fmt.Errorf("find created teams: %w", err)
		}
		for _, team := range createdTeams {
			deletedTeamIDs = append(deletedTeamIDs, team.ID)
		}

		if len(deletedTeamIDs) > 0 {
			if err := tx.Where("team_id IN ?", deletedTeamIDs).Delete(&models.TeamMember{}).Error; err != nil {
				return fmt.Errorf("delete team memberships: %w", err)
			}
			if err := tx.Where("team_id IN ?", deletedTeamIDs).Delete(&models.InviteLink{}).Error; err != nil {
				return fmt.Errorf("delete team invites: %w", err)
			}
			if err := tx.Unscoped().Where("id IN ?", deletedTeamIDs).Delete(&models.Team{}).Error; err != nil {
				return fmt.Errorf("delete created teams: %w", err)
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("delete joined memberships: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("delete refresh tokens: %w", err)
		}
		return tx.Unscoped().Delete(&models.User{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	s.emit(ctx, events.ChangeEvent("user", events.ActionDelete), id, map[string]string{"id": id})
	for _, teamID := range deletedTeamIDs {
		s.emit(ctx, events.ChangeEvent("team", events.ActionDelete), teamID, map[string]string{"id": teamID})
	}
	return nil
}

func (s *UserService) emitChange(ctx context.Context, entity, action string, e events.Entity) {
	if s.events != nil {
		s.events.EmitChange(ctx, entity, action, e)
	}
}

func (s *UserService) emit(ctx context.Context, event, ownerID string, payload any) {
	if s.events != nil {
		s.events.Emit(ctx, event, ownerID, payload)
	}
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
