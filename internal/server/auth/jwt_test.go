package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

func TestVerify_RoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "marketrelay")
	require.NoError(t, err)

	tok, err := v.Issue("user-7", "0xabc", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-7", id.UserID)
	assert.Equal(t, "0xabc", id.PublicKey)
}

func TestVerify_Rejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret", "marketrelay")
	require.NoError(t, err)
	other, err := NewJWTVerifier("different", "marketrelay")
	require.NoError(t, err)
	wrongIssuer, err := NewJWTVerifier("s3cret", "someone-else")
	require.NoError(t, err)

	expired, err := v.Issue("u", "", -time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("u", "", time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Issue("u", "", time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue("", "", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Issuer: "marketrelay"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u", Issuer: "marketrelay", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"wrong secret": forged,
		"wrong issuer": misissued,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"alg none":     unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, domain.ErrAuthenticationFailed)
		})
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
