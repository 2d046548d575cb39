// Package auth verifies bearer credentials presented by realtime clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// Claims is the token body. Subject is the stable subscriber identity.
type Claims struct {
	PublicKey string `json:"pubkey,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements domain.IdentityVerifier for HMAC-signed tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewJWTVerifier creates a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: %w: empty jwt secret", domain.ErrConfiguration)
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}, nil
}

// Verify parses and validates token. Every failure wraps
// domain.ErrAuthenticationFailed.
func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrAuthenticationFailed)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token claims", domain.ErrAuthenticationFailed)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, errors.New("token has no subject"))
	}
	return domain.Identity{UserID: claims.Subject, PublicKey: claims.PublicKey}, nil
}

// Issue signs a token for subject valid for ttl. It exists for operators and
// tests; the gateway only verifies.
func (v *JWTVerifier) Issue(subject, publicKey string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		PublicKey: publicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}

var _ domain.IdentityVerifier = (*JWTVerifier)(nil)
