package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/events"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	apperrors "github.com/talkbase/accounts/pkg/errors"
)

// ListTeamsQuery filters and paginates the team listing. All filters bind
// as query parameters; no identifier is ever interpolated into SQL text.
type ListTeamsQuery struct {
	Q      string
	IDs    []string
	UserID string

	Page     int
	PageSize int

	IncludeMembers     bool
	IncludeInviteLinks bool
}

// MemberPatch mutates one membership inside a team update. An empty Scopes
// with Delete false is rejected.
type MemberPatch struct {
	UserID string
	Scopes []scopes.Scope
	Delete bool
}

// UpdateTeamInput carries a partial team update. Metadata entries merge into
// the existing bag; a nil value removes the key.
type UpdateTeamInput struct {
	Name                *string
	Metadata            map[string]any
	Members             []MemberPatch
	DeleteInviteLinkIDs []string
}

// TeamService owns team reads and the transactional team update: profile
// changes, membership grants bounded by the grantor's own scopes, and
// invite link removal.
type TeamService struct {
	db     *gorm.DB
	events *events.Manager
	now    func() time.Time
}

// NewTeamService wires team reads and updates.
func NewTeamService(db *gorm.DB, bus *events.Manager) *TeamService {
	return &TeamService{db: db, events: bus, now: time.Now}
}

// Get returns one team the caller can see. Member and invite expansions are
// gated by the corresponding read scopes.
func (s *TeamService) Get(ctx context.Context, claims *auth.Claims, id string, includeMembers, includeInviteLinks bool) (*models.Team, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)

	q := s.db.WithContext(ctx)
	if includeMembers {
		if err := auth.AssertScopes(claims, "TEAMMEMBERS_READ"); err != nil && !isAdmin {
			return nil, err
		}
		q = q.Preload("Members")
	}
	if includeInviteLinks {
		if err := auth.AssertScopes(claims, "TEAMLINK_READ"); err != nil && !isAdmin {
			return nil, err
		}
		q = q.Preload("InviteLinks", "expires_at > ?", s.now())
	}

	var team models.Team
	err := q.Take(&team, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("team service: find team: %w", err)
	}

	if !isAdmin {
		member, err := findMembership(ctx, s.db, team.ID, claims.User.ID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, apperrors.NewNotFound("Team not found")
		}
	}
	return &team, nil
}

// List returns the teams visible to the caller. Non-admins only see teams
// they belong to, whatever filters they supply.
func (s *TeamService) List(ctx context.Context, claims *auth.Claims, query ListTeamsQuery) ([]models.Team, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)

	q := s.db.WithContext(ctx).Model(&models.Team{})

	if !isAdmin {
		q = q.Where(
			"teams.id IN (?)",
			s.db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", claims.User.ID),
		)
	}

	if query.UserID != "" {
		if !isAdmin && query.UserID != claims.User.ID {
			return nil, apperrors.NewForbidden("You cannot list another user's teams")
		}
		q = q.Where(
			"teams.id IN (?)",
			s.db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", query.UserID),
		)
	}

	if len(query.IDs) > 0 {
		q = q.Where("teams.id IN ?", query.IDs)
	}
	if search := strings.TrimSpace(query.Q); search != "" {
		q = q.Where("teams.name LIKE ?", "%"+search+"%")
	}

	if query.IncludeMembers {
		if err := auth.AssertScopes(claims, "TEAMMEMBERS_READ"); err != nil && !isAdmin {
			return nil, err
		}
		q = q.Preload("Members")
	}
	if query.IncludeInviteLinks {
		if err := auth.AssertScopes(claims, "TEAMLINK_READ"); err != nil && !isAdmin {
			return nil, err
		}
		q = q.Preload("InviteLinks", "expires_at > ?", s.now())
	}

	page, pageSize := normalisePage(query.Page, query.PageSize)

	var teams []models.Team
	err := q.Order("teams.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list teams: %w", err)
	}
	return teams, nil
}

// Update applies a team patch in one transaction: profile fields, metadata
// merge, membership mutations, and invite link deletions. Membership rules:
// the creator's membership is untouchable, actors cannot edit or remove
// themselves, and a grant may never exceed the grantor's own wallet. Only a
// platform admin with no membership in the team grants from the full
// catalogue.
func (s *TeamService) Update(ctx context.Context, claims *auth.Claims, teamID string, input UpdateTeamInput) (*models.Team, error) {
	isAdmin := claims.HasScope(scopes.AdminPanelAccess)

	var team models.Team
	var memberEvents []func()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Take(&team, "id = ?", teamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("Team not found")
		}
		if err != nil {
			return fmt.Errorf("find team: %w", err)
		}

		actor, err := findMembership(ctx, tx, teamID, claims.User.ID)
		if err != nil {
			return err
		}
		if actor == nil && !isAdmin {
			return apperrors.NewNotFound("Team not found")
		}

		updates := map[string]any{}
		if input.Name != nil {
			updates["name"] = *input.Name
		}
		if input.Metadata != nil {
			merged := datatypes.JSONMap{}
			for k, v := range team.Metadata {
				merged[k] = v
			}
			for k, v := range input.Metadata {
				if v == nil {
					delete(merged, k)
					continue
				}
				merged[k] = v
			}
			updates["metadata"] = merged
		}
		if len(updates) > 0 {
			if err := tx.Model(&team).Updates(updates).Error; err != nil {
				return fmt.Errorf("update team: %w", err)
			}
		}

		if len(input.Members) > 0 {
			if err := auth.AssertScopes(claims, "TEAMMEMBERS_UPDATE"); err != nil && !isAdmin {
				return err
			}

			// the grantor's wallet bounds every grant, admin or not;
			// only an admin acting from outside the team holds the
			// full catalogue
			grantorScopes := scopes.All()
			if actor != nil {
				grantorScopes = actor.Scopes
			}

			for _, patch := range input.Members {
				changed, err := s.applyMemberPatch(ctx, tx, &team, claims, patch, grantorScopes, isAdmin)
				if err != nil {
					return err
				}
				memberEvents = append(memberEvents, changed...)
			}
		}

		if len(input.DeleteInviteLinkIDs) > 0 {
			if err := auth.AssertScopes(claims, "TEAMLINK_CREATE"); err != nil && !isAdmin {
				return err
			}
			err := tx.Where("team_id = ? AND id IN ?", teamID, input.DeleteInviteLinkIDs).
				Delete(&models.InviteLink{}).Error
			if err != nil {
				return fmt.Errorf("delete invite links: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, fire := range memberEvents {
		fire()
	}
	s.emitChange(ctx, "team", events.ActionUpdate, &team)

	return &team, nil
}

func (s *TeamService) applyMemberPatch(
	ctx context.Context,
	tx *gorm.DB,
	team *models.Team,
	claims *auth.Claims,
	patch MemberPatch,
	grantorScopes []scopes.Scope,
	isAdmin bool,
) ([]func(), error) {
	if patch.UserID == team.CreatedBy {
		return nil, apperrors.NewForbidden("The team creator's membership cannot be modified")
	}
	if patch.UserID == claims.User.ID {
		return nil, apperrors.NewForbidden("You cannot modify your own membership")
	}

	target, err := findMembership(ctx, tx, team.ID, patch.UserID)
	if err != nil {
		return nil, err
	}

	if patch.Delete {
		if target == nil {
			return nil, apperrors.NewNotFound("Member not found")
		}
		err := tx.Where("team_id = ? AND user_id = ?", team.ID, patch.UserID).
			Delete(&models.TeamMember{}).Error
		if err != nil {
			return nil, fmt.Errorf("remove member: %w", err)
		}
		payload := map[string]string{"teamId": team.ID, "userId": patch.UserID}
		return []func(){func() {
			s.emit(ctx, events.ChangeEvent("teammember", events.ActionDelete), team.ID, payload)
		}}, nil
	}

	if unknown, ok := scopes.Validate(patch.Scopes); !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("Unknown scope %q", unknown))
	}
	if len(patch.Scopes) == 0 {
		return nil, apperrors.NewBadRequest("A membership needs at least one scope")
	}
	if excess, ok := firstExcess(patch.Scopes, grantorScopes); ok {
		return nil, apperrors.NewForbidden(
			fmt.Sprintf("You cannot grant the %q scope, you do not hold it yourself", excess),
		)
	}

	if target == nil {
		// only admins may attach a user who never redeemed an invite
		if !isAdmin {
			return nil, apperrors.NewNotFound("Member not found")
		}
		member := &models.TeamMember{
			TeamID:  team.ID,
			UserID:  patch.UserID,
			AddedBy: &claims.User.ID,
			Scopes:  datatypes.NewJSONSlice(patch.Scopes),
		}
		if err := tx.Create(member).Error; err != nil {
			return nil, fmt.Errorf("add member: %w", err)
		}
		return []func(){func() {
			s.emitChange(ctx, "teammember", events.ActionInsert, member)
		}}, nil
	}

	target.Scopes = datatypes.NewJSONSlice(patch.Scopes)
	err = tx.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, patch.UserID).
		Update("scopes", target.Scopes).Error
	if err != nil {
		return nil, fmt.Errorf("update member scopes: %w", err)
	}
	updated := *target
	return []func(){func() {
		s.emitChange(ctx, "teammember", events.ActionUpdate, &updated)
	}}, nil
}

func (s *TeamService) emitChange(ctx context.Context, entity, action string, e events.Entity) {
	if s.events != nil {
		s.events.EmitChange(ctx, entity, action, e)
	}
}

func (s *TeamService) emit(ctx context.Context, event, ownerID string, payload any) {
	if s.events != nil {
		s.events.Emit(ctx, event, ownerID, payload)
	}
}
