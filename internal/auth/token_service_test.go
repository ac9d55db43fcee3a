package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkbase/accounts/internal/scopes"
	apperrors "github.com/talkbase/accounts/pkg/errors"
)

func newTestTokenService(t *testing.T, opts ...func(*TokenConfig)) *TokenService {
	t.Helper()

	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	cfg := TokenConfig{
		PrivateKeyPEM: pair.PrivateKeyPEM,
		PublicKeyPEM:  pair.PublicKeyPEM,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := newTestTokenService(t)

	user := TokenUser{
		ID:          "user-1",
		FullName:    "Ada Lovelace",
		PhoneNumber: "15550001111",
		TeamID:      "team-1",
	}
	granted := []scopes.Scope{"WA_STATE", "MESSAGES_SEND", "TEAMMEMBERS_READ"}

	signed, err := svc.Issue(user, granted, 0)
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)

	assert.Equal(t, user, claims.User)
	assert.Equal(t, scopes.Encode(granted), claims.Scope)
	for _, name := range granted {
		assert.True(t, claims.HasScope(name), "expected scope %s", name)
	}
	assert.False(t, claims.HasScope("PAYMENTS_READ"))
}

func TestTokenServiceExpiredToken(t *testing.T) {
	current := time.Now()
	svc := newTestTokenService(t, func(cfg *TokenConfig) {
		cfg.Clock = func() time.Time { return current }
	})

	signed, err := svc.Issue(TokenUser{ID: "user-1"}, scopes.Base(), time.Minute)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)

	_, err = svc.Verify(signed)
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrUnauthorized.Code, appErr.Code)
}

func TestTokenServiceRejectsTamperedToken(t *testing.T) {
	svc := newTestTokenService(t)

	signed, err := svc.Issue(TokenUser{ID: "user-1"}, scopes.Base(), 0)
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), "user-1", "user-2", 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = svc.Verify(strings.Join(parts, "."))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized.Code, apperrors.FromError(err).Code)
}

func TestTokenServiceRejectsForeignKey(t *testing.T) {
	issuer := newTestTokenService(t)
	verifier := newTestTokenService(t)

	signed, err := issuer.Issue(TokenUser{ID: "user-1"}, scopes.Base(), 0)
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	require.Error(t, err)
}

func TestTokenServiceEmptyToken(t *testing.T) {
	svc := newTestTokenService(t)

	_, err := svc.Verify("")
	assert.Equal(t, apperrors.ErrUnauthorized.Code, apperrors.FromError(err).Code)

	_, err = svc.Verify("not-a-jwt")
	assert.Equal(t, apperrors.ErrUnauthorized.Code, apperrors.FromError(err).Code)
}

func TestTokenServiceAcceptsBareBase64Keys(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	strip := func(pemKey string) string {
		var body strings.Builder
		for _, line := range strings.Split(pemKey, "\n") {
			if strings.HasPrefix(line, "-----") || line == "" {
				continue
			}
			body.WriteString(line)
			body.WriteString("\n")
		}
		return strings.TrimSpace(body.String())
	}

	svc, err := NewTokenService(TokenConfig{
		PrivateKeyPEM: strip(pair.PrivateKeyPEM),
		PublicKeyPEM:  strip(pair.PublicKeyPEM),
	})
	require.NoError(t, err)

	signed, err := svc.Issue(TokenUser{ID: "user-1"}, scopes.Base(), 0)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	require.NoError(t, err)
}

func TestTokenServiceVerifyOnly(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	issuer, err := NewTokenService(TokenConfig{PrivateKeyPEM: pair.PrivateKeyPEM})
	require.NoError(t, err)

	verifier, err := NewTokenService(TokenConfig{PublicKeyPEM: pair.PublicKeyPEM})
	require.NoError(t, err)

	signed, err := issuer.Issue(TokenUser{ID: "user-1"}, scopes.Base(), 0)
	require.NoError(t, err)

	claims, err := verifier.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.User.ID)

	_, err = verifier.Issue(TokenUser{ID: "user-1"}, scopes.Base(), 0)
	require.Error(t, err)
}

func TestTokenServiceRequiresKey(t *testing.T) {
	_, err := NewTokenService(TokenConfig{})
	require.Error(t, err)
}

func TestIssueServiceShortLived(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, func(cfg *TokenConfig) {
		cfg.Clock = func() time.Time { return now }
	})

	signed, err := svc.IssueService(TokenUser{ID: "user-1", TeamID: "team-1"}, "PAYMENTS_READ")
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.True(t, claims.HasScope("PAYMENTS_READ"))
	assert.WithinDuration(t, now.Add(5*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestAssertScopesAnyOf(t *testing.T) {
	claims := &Claims{Scope: scopes.Encode([]scopes.Scope{"MESSAGES_READ"})}

	// no requirements always passes
	assert.NoError(t, AssertScopes(claims))

	// holding one of several suffices
	assert.NoError(t, AssertScopes(claims, "MESSAGES_SEND", "MESSAGES_READ"))

	// holding none fails, naming the first missing scope
	err := AssertScopes(claims, "TEAMMEMBERS_UPDATE", "TEAMLINK_CREATE")
	require.Error(t, err)
	appErr := apperrors.FromError(err)
	assert.Equal(t, apperrors.ErrForbidden.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "TEAMMEMBERS_UPDATE")
	assert.Equal(t, []scopes.Scope{"TEAMMEMBERS_UPDATE", "TEAMLINK_CREATE"}, appErr.Data)
}

func TestAssertScopesEmptyBitstring(t *testing.T) {
	err := AssertScopes(&Claims{}, "WA_STATE")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrForbidden.Code, apperrors.FromError(err).Code)
}
