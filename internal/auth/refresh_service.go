package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/talkbase/accounts/internal/models"
	apperrors "github.com/talkbase/accounts/pkg/errors"
)

// DefaultRefreshTokenTTL is the refresh token lifetime. Each successful use
// slides the expiry forward by this window.
const DefaultRefreshTokenTTL = 14 * 24 * time.Hour

// ErrRefreshTokenInvalid covers missing, expired, and orphaned refresh tokens.
var ErrRefreshTokenInvalid = apperrors.New(
	"REFRESH_TOKEN_INVALID", "Invalid or expired refresh token", 401,
)

// RefreshConfig describes tunable behaviour for the RefreshService.
type RefreshConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// RefreshService manages issuance, renewal, and revocation of refresh
// tokens. One record exists per logical session; the token id never rotates.
type RefreshService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewRefreshService constructs a refresh token store backed by the database.
func NewRefreshService(db *gorm.DB, cfg RefreshConfig) (*RefreshService, error) {
	if db == nil {
		return nil, errors.New("refresh service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &RefreshService{db: db, ttl: ttl, now: clock}, nil
}

// Issue creates a refresh token bound to the given user.
func (s *RefreshService) Issue(ctx context.Context, userID string) (*models.RefreshToken, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("refresh service: user id is required")
	}

	token := &models.RefreshToken{
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return nil, fmt.Errorf("refresh service: create token: %w", err)
	}
	return token, nil
}

// Authenticate resolves a refresh token to its owning user and slides the
// expiry window forward. Expired and orphaned tokens are rejected alike.
func (s *RefreshService) Authenticate(ctx context.Context, token string) (*models.User, *models.RefreshToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrRefreshTokenInvalid
	}

	now := s.now()

	var record models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, nil, fmt.Errorf("refresh service: find token: %w", err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Take(&user, "id = ?", record.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// owner deleted; the cascade will collect the row eventually
		return nil, nil, ErrRefreshTokenInvalid
	}
	if err != nil {
		return nil, nil, fmt.Errorf("refresh service: load owner: %w", err)
	}

	record.ExpiresAt = now.Add(s.ttl)
	if err := s.db.WithContext(ctx).Model(&record).Update("expires_at", record.ExpiresAt).Error; err != nil {
		return nil, nil, fmt.Errorf("refresh service: slide expiry: %w", err)
	}

	return &user, &record, nil
}

// List returns the user's refresh tokens, most recently used first.
func (s *RefreshService) List(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	var tokens []models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("refresh service: list tokens: %w", err)
	}
	return tokens, nil
}

// Revoke deletes a refresh token, but only when the caller owns it.
func (s *RefreshService) Revoke(ctx context.Context, userID, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewBadRequest("token is required")
	}

	result := s.db.WithContext(ctx).
		Where("token = ? AND user_id = ?", token, userID).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return fmt.Errorf("refresh service: revoke token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteExpired removes refresh tokens past their expiry.
func (s *RefreshService) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh service: delete expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
