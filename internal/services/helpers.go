package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/subscription"
)

// isPlatformAdmin reports whether the user belongs to the admin-flagged team.
func isPlatformAdmin(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.TeamMember{}).
		Joins("JOIN teams ON teams.id = team_members.team_id").
		Where("team_members.user_id = ? AND teams.is_admin = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check platform admin: %w", err)
	}
	return count > 0, nil
}

// findMembership loads the (team, user) membership row if one exists.
func findMembership(ctx context.Context, db *gorm.DB, teamID, userID string) (*models.TeamMember, error) {
	var member models.TeamMember
	err := db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &member, nil
}

// maxAllowedScopes derives the scope set a user may exercise within a team:
// the membership wallet intersected with what the team's subscription
// unlocks. Admin teams and platform admins get the full catalogue. A granted
// scope the subscription no longer unlocks is unusable until re-unlocked.
func maxAllowedScopes(
	ctx context.Context,
	db *gorm.DB,
	gate subscription.Gate,
	user auth.TokenUser,
	team *models.Team,
	isAdmin bool,
) ([]scopes.Scope, error) {
	if team.IsAdmin || isAdmin {
		return scopes.All(), nil
	}

	member, err := findMembership(ctx, db, team.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, nil
	}

	ent, err := gate.ActiveEntitlements(ctx, user)
	if err != nil {
		return nil, err
	}

	return intersectScopes(member.Scopes, ent.Scopes), nil
}

// intersectScopes returns the members of a that also appear in b, keeping
// a's order.
func intersectScopes(a, b []scopes.Scope) []scopes.Scope {
	allowed := make(map[scopes.Scope]struct{}, len(b))
	for _, s := range b {
		allowed[s] = struct{}{}
	}

	out := make([]scopes.Scope, 0, len(a))
	for _, s := range a {
		if _, ok := allowed[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// firstExcess returns the first member of requested that is not in allowed.
func firstExcess(requested, allowed []scopes.Scope) (scopes.Scope, bool) {
	held := make(map[scopes.Scope]struct{}, len(allowed))
	for _, s := range allowed {
		held[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := held[s]; !ok {
			return s, true
		}
	}
	return "", false
}

// tokenUserFor builds the token identity for a user acting in a team.
func tokenUserFor(user *models.User, teamID string) auth.TokenUser {
	return auth.TokenUser{
		ID:          user.ID,
		FullName:    user.FullName,
		PhoneNumber: user.PhoneNumber,
		TeamID:      teamID,
	}
}
