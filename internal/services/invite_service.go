package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/subscription"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/metrics"
)

// InviteValidity is the fixed lifetime of an invite link.
const InviteValidity = 24 * time.Hour

// InviteService owns the invite link lifecycle: creation bounded by the
// creator's scopes, masked reads past expiry, and atomic seat-checked
// redemption into a membership.
type InviteService struct {
	db     *gorm.DB
	gate   subscription.Gate
	events *events.Manager
	now    func() time.Time
}

// NewInviteService wires the invite link engine.
func NewInviteService(db *gorm.DB, gate subscription.Gate, bus *events.Manager) *InviteService {
	return &InviteService{db: db, gate: gate, events: bus, now: time.Now}
}

// Create mints a 24h invite link for a team. The requested scopes must be a
// subset of the creator's current wallet; a platform admin creating an
// invite for a team they do not belong to may grant the full user
// catalogue. The scope set is frozen into the link and never re-evaluated.
func (s *InviteService) Create(ctx context.Context, claims *auth.Claims, teamID string, requested []scopes.Scope) (*models.InviteLink, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)
	if err := auth.AssertScopes(claims, "TEAMLINK_CREATE"); err != nil && !isAdmin {
		return nil, err
	}

	if unknown, ok := scopes.Validate(requested); !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("Unknown scope %q", unknown))
	}
	if len(requested) == 0 {
		return nil, apperrors.NewBadRequest("An invite needs at least one scope")
	}

	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find team: %w", err)
	}

	member, err := findMembership(ctx, s.db, teamID, claims.User.ID)
	if err != nil {
		return nil, err
	}

	var creatorScopes []scopes.Scope
	switch {
	case member != nil:
		creatorScopes = member.Scopes
	case isAdmin:
		creatorScopes = scopes.AllUser()
	default:
		return nil, apperrors.NewNotFound("Team not found")
	}

	if excess, ok := firstExcess(requested, creatorScopes); ok {
		return nil, apperrors.NewForbidden(
			fmt.Sprintf("You cannot grant the %q scope, you do not hold it yourself", excess),
		)
	}

	invite := &models.InviteLink{
		TeamID:    teamID,
		CreatedBy: claims.User.ID,
		ExpiresAt: s.now().Add(InviteValidity),
		Scopes:    datatypes.NewJSONSlice(requested),
	}
	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	s.emitChange(ctx, "teaminvite", events.ActionInsert, invite)
	return invite, nil
}

// Get returns an unexpired invite. Expired and deleted invites both answer
// NotFound so existence never leaks past expiry.
func (s *InviteService) Get(ctx context.Context, id string) (*models.InviteLink, error) {
	var invite models.InviteLink
	err := s.db.WithContext(ctx).
		Preload("Team").
		Where("id = ? AND expires_at > ?", id, s.now()).
		Take(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}
	return &invite, nil
}

// List returns a team's unexpired invite links.
func (s *InviteService) List(ctx context.Context, claims *auth.Claims, teamID string) ([]models.InviteLink, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)
	if err := auth.AssertScopes(claims, "TEAMLINK_READ"); err != nil && !isAdmin {
		return nil, err
	}

	var invites []models.InviteLink
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND expires_at > ?", teamID, s.now()).
		Order("created_at DESC").
		Find(&invites).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// Redeem converts an invite into a membership for the redeeming user. The
// seat check and membership insert run in one transaction so two concurrent
// redemptions cannot both squeeze into the last seat. The membership gets
// exactly the invite's frozen scopes and records the invite creator as the
// grantor.
func (s *InviteService) Redeem(ctx context.Context, user *models.User, inviteID string) (*models.TeamMember, error) {
	member, err := s.redeem(ctx, user, inviteID)
	if err != nil {
		metrics.InviteRedemptions.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.InviteRedemptions.WithLabelValues("ok").Inc()
	s.emitChange(ctx, "teammember", events.ActionInsert, member)
	return member, nil
}

func (s *InviteService) redeem(ctx context.Context, user *models.User, inviteID string) (*models.TeamMember, error) {
	var member *models.TeamMember

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite models.InviteLink
		err := tx.Where("id = ? AND expires_at > ?", inviteID, s.now()).Take(&invite).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("Invite not found")
		}
		if err != nil {
			return fmt.Errorf("find invite: %w", err)
		}

		var team models.Team
		if err := tx.Take(&team, "id = ?", invite.TeamID).Error; err != nil {
			return fmt.Errorf("load invite team: %w", err)
		}

		existing, err := findMembership(ctx, tx, team.ID, user.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.NewConflict("You are already a member of this team")
		}

		if !team.IsAdmin {
			ent, err := s.gate.ActiveEntitlements(ctx, tokenUserFor(user, team.ID))
			if err != nil {
				return err
			}

			var seats int64
			if err := tx.Model(&models.TeamMember{}).Where("team_id = ?", team.ID).Count(&seats).Error; err != nil {
				return fmt.Errorf("count members: %w", err)
			}
			if seats >= int64(ent.SeatLimit) {
				return apperrors.NewForbidden("This team has no seats left")
			}
		}

		member = &models.TeamMember{
			TeamID:  team.ID,
			UserID:  user.ID,
			AddedBy: &invite.CreatedBy,
			Scopes:  invite.Scopes,
		}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// Delete removes a team's invite link. Gated by invite-creation access so
// any member who can mint links can also retire them.
func (s *InviteService) Delete(ctx context.Context, claims *auth.Claims, teamID, inviteID string) error {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)
	if err := auth.AssertScopes(claims, "TEAMLINK_CREATE"); err != nil && !isAdmin {
		return err
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND team_id = ?", inviteID, teamID).
		Delete(&models.InviteLink{})
	if result.Error != nil {
		return fmt.Errorf("invite service: delete invite: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("Invite not found")
	}

	s.emit(ctx, events.ChangeEvent("teaminvite", events.ActionDelete), teamID, map[string]string{"id": inviteID})
	return nil
}

// DeleteExpired removes invite links past their expiry.
func (s *InviteService) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.InviteLink{})
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InviteService) emitChange(ctx context.Context, entity, action string, e events.Entity) {
	if s.events != nil {
		s.events.EmitChange(ctx, entity, action, e)
	}
}

func (s *InviteService) emit(ctx context.Context, event, ownerID string, payload any) {
	if s.events != nil {
		s.events.Emit(ctx, event, ownerID, payload)
	}
}
