// Package token mints and verifies the bearer tokens the field API issues
// at login. Tokens are EdDSA-signed JWTs carrying the identity and tenant.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/id"
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer     string        `env:"FIELDOPS_TOKEN_ISSUER"      envDefault:"fieldops"`
	Audience   string        `env:"FIELDOPS_TOKEN_AUDIENCE"    envDefault:"fieldops-agent"`
	PrivateKey string        `env:"FIELDOPS_TOKEN_PRIVATE_KEY"`
	TTL        time.Duration `env:"FIELDOPS_TOKEN_TTL"         envDefault:"12h"`
}

// Config defines how bearer tokens are signed and verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures a verified bearer token.
type Claims struct {
	IdentityID string
	TenantID   string
	ExpiresAt  time.Time
}

type bearerClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// LoadConfigFromEnv reads token signing configuration. The private key is
// a base64-encoded ed25519 seed-plus-public key.
func LoadConfigFromEnv() (Config, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse token env: %w", err)
	}
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if privateKey == "" {
		return Config{}, fmt.Errorf("FIELDOPS_TOKEN_PRIVATE_KEY is required")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode token private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return Config{}, fmt.Errorf("token private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if raw.TTL <= 0 {
		return Config{}, fmt.Errorf("token ttl must be positive")
	}
	return Config{
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Key:      ed25519.PrivateKey(keyBytes),
		TTL:      raw.TTL,
		Now:      time.Now,
	}, nil
}

func (c Config) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Mint signs a bearer token for the identity.
func (c Config) Mint(identityID, tenantID string) (string, error) {
	if len(c.Key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("token signer is not configured")
	}
	jti, err := id.NewID()
	if err != nil {
		return "", err
	}
	now := c.now().UTC()
	claims := bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   identityID,
			Audience:  jwt.ClaimStrings{c.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
		TenantID: tenantID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(c.Key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token. Every failure maps to a
// credential error so callers answer 401 uniformly.
func (c Config) Verify(bearer string) (Claims, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "bearer token is required")
	}
	if len(c.Key) != ed25519.PrivateKeySize {
		return Claims{}, fmt.Errorf("token verifier is not configured")
	}

	var parsed bearerClaims
	_, err := jwt.ParseWithClaims(bearer, &parsed, func(token *jwt.Token) (any, error) {
		return c.Key.Public(), nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(c.Issuer),
		jwt.WithAudience(c.Audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		code := apperrors.CodeCredentialInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = apperrors.CodeCredentialExpired
		}
		return Claims{}, apperrors.Wrap(code, "verify bearer token", err)
	}
	if parsed.Subject == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "bearer token subject is required")
	}

	claims := Claims{
		IdentityID: parsed.Subject,
		TenantID:   parsed.TenantID,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
