package auth

import (
	"errors"
	"strings"

	"github.com/vovakirdan/liveroom-server/internal/config"
	"github.com/vovakirdan/liveroom-server/internal/core"
)

// ErrMissingToken is returned when no token was presented.
var ErrMissingToken = errors.New("missing token")

// Verifier checks bearer tokens against the shared secret. It implements
// core.IdentityVerifier.
type Verifier struct {
	cfg JWTConfig
}

// NewVerifier creates a verifier from the server configuration.
func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{cfg: JWTConfig{
		Secret:   []byte(cfg.Secret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
	}}
}

// Verify returns the identity carried by token.
func (v *Verifier) Verify(token string) (core.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Identity{}, ErrMissingToken
	}
	claims, err := ValidateToken(&v.cfg, token)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{
		UserID:   string(claims.UserID),
		Username: claims.Username,
		Verified: true,
	}, nil
}

var _ core.IdentityVerifier = (*Verifier)(nil)
