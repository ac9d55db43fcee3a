package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/auth"
	"github.com/talkbase/accounts/internal/models"
	"github.com/talkbase/accounts/internal/scopes"
	"github.com/talkbase/accounts/internal/subscription"
	"github.com/talkbase/accounts/pkg/crypto"
	apperrors "github.com/talkbase/accounts/pkg/errors"
	"github.com/talkbase/accounts/pkg/metrics"
)

// Grant methods recorded on token issuance.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// TokenRequest is the input to IssueToken. Exactly one credential must be
// supplied: a phone number and password, or a refresh token.
type TokenRequest struct {
	PhoneNumber  string
	Password     string
	RefreshToken string

	// TeamID addresses the team to act in. Empty falls back to the user's
	// last used team, then the team they created.
	TeamID string

	// Scopes narrows the grant. Empty requests everything allowed.
	Scopes []scopes.Scope

	// TTL overrides the default access token lifetime when positive.
	TTL time.Duration
}

// TokenGrant is the outcome of a successful token issuance.
type TokenGrant struct {
	AccessToken  string         `json:"access_token"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	RefreshToken string         `json:"refresh_token"`
	User         *models.User   `json:"user"`
	TeamID       string         `json:"teamId"`
	Scopes       []scopes.Scope `json:"scopes"`
}

// AuthService implements the token grant flows: credential verification,
// team selection, effective-scope derivation, and access plus refresh token
// issuance.
type AuthService struct {
	db      *gorm.DB
	tokens  *auth.TokenService
	refresh *auth.RefreshService
	gate    subscription.Gate
	now     func() time.Time
}

// NewAuthService wires the token grant flow.
func NewAuthService(db *gorm.DB, tokens *auth.TokenService, refresh *auth.RefreshService, gate subscription.Gate) *AuthService {
	return &AuthService{db: db, tokens: tokens, refresh: refresh, gate: gate, now: time.Now}
}

// IssueToken authenticates the caller, selects a team, derives the maximal
// allowed scope set, and signs an access token. Password grants also mint a
// refresh token; refresh grants slide the existing token's expiry and reuse
// its id.
func (s *AuthService) IssueToken(ctx context.Context, req TokenRequest) (*TokenGrant, error) {
	grant := GrantPassword
	if strings.TrimSpace(req.RefreshToken) != "" {
		grant = GrantRefreshToken
	}

	result, err := s.issueToken(ctx, req, grant)
	if err != nil {
		metrics.TokenIssuance.WithLabelValues(grant, "error").Inc()
		return nil, err
	}

	metrics.TokenIssuance.WithLabelValues(grant, "ok").Inc()
	return result, nil
}

func (s *AuthService) issueToken(ctx context.Context, req TokenRequest, grant string) (*TokenGrant, error) {
	if unknown, ok := scopes.Validate(req.Scopes); !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("Unknown scope %q", unknown))
	}

	var (
		user         *models.User
		refreshToken string
	)

	switch grant {
	case GrantRefreshToken:
		authed, record, err := s.refresh.Authenticate(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
		user = authed
		refreshToken = record.Token

	default:
		authed, err := s.authenticatePassword(ctx, req.PhoneNumber, req.Password)
		if err != nil {
			return nil, err
		}
		user = authed

		issued, err := s.refresh.Issue(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		refreshToken = issued.Token
	}

	isAdmin, err := isPlatformAdmin(ctx, s.db, user.ID)
	if err != nil {
		return nil, err
	}

	team, err := s.selectTeam(ctx, user, req.TeamID, isAdmin)
	if err != nil {
		return nil, err
	}

	identity := tokenUserFor(user, team.ID)

	maxAllowed, err := maxAllowedScopes(ctx, s.db, s.gate, identity, team, isAdmin)
	if err != nil {
		return nil, err
	}
	if maxAllowed == nil && !isAdmin {
		return nil, apperrors.NewForbidden("You are not a member of this team")
	}

	granted := req.Scopes
	if len(granted) == 0 {
		granted = maxAllowed
	} else if !isAdmin {
		// admins may request scopes beyond their allowance, everyone
		// else is capped at maxAllowed
		if excess, ok := firstExcess(granted, maxAllowed); ok {
			return nil, apperrors.NewForbidden(
				fmt.Sprintf("You cannot request the %q scope on this team", excess),
			)
		}
	}

	// Fresh logins stamp the login time; the remembered team only moves
	// when the caller addressed one explicitly.
	now := s.now()
	updates := map[string]any{}
	if grant == GrantPassword {
		updates["last_login_at"] = now
	}
	if req.TeamID != "" {
		updates["last_used_team_id"] = team.ID
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("auth service: record login: %w", err)
		}
	}

	accessToken, err := s.tokens.Issue(identity, granted, req.TTL)
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return &TokenGrant{
		AccessToken:  accessToken,
		ExpiresAt:    now.Add(ttl),
		RefreshToken: refreshToken,
		User:         user,
		TeamID:       team.ID,
		Scopes:       granted,
	}, nil
}

func (s *AuthService) authenticatePassword(ctx context.Context, phoneNumber, password string) (*models.User, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("phone_number = ?", phoneNumber).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return &user, nil
}

// selectTeam resolves the team a token is issued for. An explicit team id
// wins; non-admins must belong to it. Otherwise the user's last used team,
// then the team they created, then any membership.
func (s *AuthService) selectTeam(ctx context.Context, user *models.User, teamID string, isAdmin bool) (*models.Team, error) {
	if teamID != "" {
		var team models.Team
		err := s.db.WithContext(ctx).Take(&team, "id = ?", teamID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("Team not found")
		}
		if err != nil {
			return nil, fmt.Errorf("auth service: find team: %w", err)
		}

		if !isAdmin {
			member, err := findMembership(ctx, s.db, team.ID, user.ID)
			if err != nil {
				return nil, err
			}
			if member == nil {
				return nil, apperrors.NewForbidden("You are not a member of this team")
			}
		}
		return &team, nil
	}

	if user.LastUsedTeamID != nil {
		var team models.Team
		err := s.db.WithContext(ctx).Take(&team, "id = ?", *user.LastUsedTeamID).Error
		if err == nil {
			return &team, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("auth service: find last used team: %w", err)
		}
	}

	var created models.Team
	err := s.db.WithContext(ctx).Where("created_by = ?", user.ID).Order("created_at ASC").Take(&created).Error
	if err == nil {
		return &created, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("auth service: find created team: %w", err)
	}

	var member models.TeamMember
	err = s.db.WithContext(ctx).Where("user_id = ?", user.ID).Order("added_at ASC").Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewForbidden("You are not a member of any team")
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: find membership: %w", err)
	}

	var team models.Team
	if err := s.db.WithContext(ctx).Take(&team, "id = ?", member.TeamID).Error; err != nil {
		return nil, fmt.Errorf("auth service: load membership team: %w", err)
	}
	return &team, nil
}

// ListRefreshTokens returns the caller's active sessions.
func (s *AuthService) ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	return s.refresh.List(ctx, userID)
}

// RevokeRefreshToken deletes one of the caller's sessions.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, userID, token string) error {
	return s.refresh.Revoke(ctx, userID, token)
}
