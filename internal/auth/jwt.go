package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures shared-secret token verification.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	RolesClaim string
	ClockSkew  time.Duration
}

// JWTVerifier verifies HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret     []byte
	rolesClaim string
	options    []jwt.ParserOption
}

// NewJWTVerifier builds a verifier. The secret must be set.
func NewJWTVerifier(cfg JWTConfig) (*JWTVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTVerifier{
		secret:     []byte(cfg.Secret),
		rolesClaim: cfg.RolesClaim,
		options:    opts,
	}, nil
}

// Verify parses and validates a token and returns the caller's context.
func (v *JWTVerifier) Verify(token string) (*Context, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.options...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return FromClaims(map[string]interface{}(claims), v.rolesClaim), nil
}

// Sign issues an HS256 token for claims. Used by tooling and tests.
func Sign(secret string, claims map[string]interface{}) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	return token.SignedString([]byte(secret))
}
