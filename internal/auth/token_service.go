package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talkbase/accounts/internal/scopes"
	apperrors "github.com/talkbase/accounts/pkg/errors"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 60 * time.Minute

// TokenUser is the identity embedded in every access token.
type TokenUser struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	TeamID      string `json:"teamId"`
}

// Claims is the access-token payload. Scope is the positional bitstring
// produced by the scopes package; verifiers check it with string indexing
// only, no store lookups.
type Claims struct {
	Scope string    `json:"scope"`
	User  TokenUser `json:"user"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants the named scope.
func (c *Claims) HasScope(name scopes.Scope) bool {
	return scopes.Has(c.Scope, name)
}

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	// PEM-encoded EC keys. Bare base64 bodies (no armour) are accepted and
	// wrapped; storing multi-line secrets in CI is error prone.
	PrivateKeyPEM  string
	PublicKeyPEM   string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// TokenService issues and verifies ES256-signed access tokens. The private
// key never leaves the issuing process; the public key may be distributed
// to any verifier.
type TokenService struct {
	private *ecdsa.PrivateKey
	public  *ecdsa.PublicKey
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenService parses the configured keypair. The private key is optional
// for verify-only deployments.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	svc := &TokenService{ttl: ttl, now: now}

	if body := strings.TrimSpace(cfg.PrivateKeyPEM); body != "" {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(armorKey(body, "EC PRIVATE KEY")))
		if err != nil {
			return nil, fmt.Errorf("token service: parse private key: %w", err)
		}
		svc.private = key
		svc.public = &key.PublicKey
	}

	if body := strings.TrimSpace(cfg.PublicKeyPEM); body != "" {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(armorKey(body, "PUBLIC KEY")))
		if err != nil {
			return nil, fmt.Errorf("token service: parse public key: %w", err)
		}
		svc.public = key
	}

	if svc.public == nil {
		return nil, errors.New("token service: a private or public key is required")
	}

	return svc, nil
}

// Issue signs an access token for the given identity, team, and scope set.
// A non-positive ttl falls back to the service default.
func (s *TokenService) Issue(user TokenUser, granted []scopes.Scope, ttl time.Duration) (string, error) {
	if s.private == nil {
		return "", errors.New("token service: signing requires the private key")
	}
	if user.ID == "" {
		return "", errors.New("token service: user id is required")
	}

	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	claims := &Claims{
		Scope: scopes.Encode(granted),
		User:  user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.private)
	if err != nil {
		return "", fmt.Errorf("token service: sign token: %w", err)
	}
	return signed, nil
}

// IssueService mints a short-lived token used for calls to collaborator
// services (e.g. the subscription gate), acting as the given user.
func (s *TokenService) IssueService(user TokenUser, granted ...scopes.Scope) (string, error) {
	return s.Issue(user, granted, 5*time.Minute)
}

// Verify parses and validates a signed token. Every failure mode (bad
// signature, expiry, malformed input) surfaces as Unauthorized.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, apperrors.ErrUnauthorized
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.public, nil
	}); err != nil {
		return nil, apperrors.ErrUnauthorized.WithInternal(err)
	}

	if claims.User.ID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	return &claims, nil
}

// AssertScopes checks that the token grants at least one of the named
// scopes. On failure it returns Forbidden naming the first missing scope
// and carrying the full missing list as structured data.
func AssertScopes(claims *Claims, required ...scopes.Scope) error {
	if len(required) == 0 {
		return nil
	}

	missing := scopes.Missing(claims.Scope, required)
	if len(missing) < len(required) {
		return nil
	}

	return apperrors.NewForbidden(
		fmt.Sprintf("You need the %q scope to access this data", missing[0]),
	).WithData(missing)
}

func armorKey(body, header string) string {
	if strings.Contains(body, "-----BEGIN") {
		return body
	}
	return fmt.Sprintf("-----BEGIN %s-----\n%s\n-----END %s-----", header, body, header)
}
