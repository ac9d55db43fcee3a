package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talkbase/accounts/internal/auth"
)

func TestApplyRuntimeDefaultsGeneratesKeyPair(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.True(t, generated["auth.jwt.private_key"])
	require.True(t, generated["auth.jwt.public_key"])

	// The generated pair must be usable by the token service.
	svc, err := auth.NewTokenService(cfg.Auth.TokenServiceConfig())
	require.NoError(t, err)

	signed, err := svc.Issue(auth.TokenUser{ID: "user-1"}, nil, 0)
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.User.ID)
}

func TestApplyRuntimeDefaultsKeepsConfiguredKeys(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.PrivateKey = "configured-private"
	cfg.Auth.JWT.PublicKey = "configured-public"

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, "configured-private", cfg.Auth.JWT.PrivateKey)
	require.Equal(t, "configured-public", cfg.Auth.JWT.PublicKey)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.Error(t, err)
}
