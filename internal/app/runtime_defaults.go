package app

import (
	"fmt"
	"strings"

	"github.com/talkbase/accounts/internal/auth"
)

// ApplyRuntimeDefaults ensures the token signing keys are populated even when
// no configuration file is supplied. A fresh ES256 key pair is generated when
// neither key is configured; tokens signed with it do not survive a restart,
// which is acceptable for development but should be avoided in production.
// It returns a map describing which keys were generated so callers can log
// the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	private := strings.TrimSpace(cfg.Auth.JWT.PrivateKey)
	public := strings.TrimSpace(cfg.Auth.JWT.PublicKey)

	if private == "" && public == "" {
		pair, err := auth.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate signing key pair: %w", err)
		}
		cfg.Auth.JWT.PrivateKey = pair.PrivateKeyPEM
		cfg.Auth.JWT.PublicKey = pair.PublicKeyPEM
		generated["auth.jwt.private_key"] = true
		generated["auth.jwt.public_key"] = true
	}

	return generated, nil
}
