package auth

import (
	"testing"
	"time"

	"dovepay/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T) *AdminAuthenticator {
	a, err := NewAdminAuthenticator(&config.AdminConfig{
		Password:    "s3cret",
		Secret:      "signing-key",
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)
	return a
}

func TestAdminAuthenticator_LoginAndVerify(t *testing.T) {
	a := newTestAuthenticator(t)
	require.True(t, a.Enabled())

	token, err := a.Login("s3cret")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(token))

	_, err = a.Login("wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestAdminAuthenticator_Expiry(t *testing.T) {
	a := newTestAuthenticator(t)
	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }

	token, err := a.Login("s3cret")
	require.NoError(t, err)

	a.now = func() time.Time { return issued.Add(59 * time.Minute) }
	assert.NoError(t, a.Verify(token))

	a.now = func() time.Time { return issued.Add(61 * time.Minute) }
	assert.ErrorIs(t, a.Verify(token), ErrInvalidToken)
}

func TestAdminAuthenticator_RejectsForeignTokens(t *testing.T) {
	a := newTestAuthenticator(t)
	now := time.Now()

	sign := func(claims jwt.RegisteredClaims, key string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "admin",
		Issuer:    "dovepay",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	wrongSubject := valid
	wrongSubject.Subject = "someone"
	wrongIssuer := valid
	wrongIssuer.Issuer = "elsewhere"

	assert.NoError(t, a.Verify(sign(valid, "signing-key")))
	assert.ErrorIs(t, a.Verify(sign(valid, "other-key")), ErrInvalidToken)
	assert.ErrorIs(t, a.Verify(sign(wrongSubject, "signing-key")), ErrInvalidToken)
	assert.ErrorIs(t, a.Verify(sign(wrongIssuer, "signing-key")), ErrInvalidToken)
	assert.ErrorIs(t, a.Verify("not-a-jwt"), ErrInvalidToken)
	assert.ErrorIs(t, a.Verify(""), ErrInvalidToken)
}

func TestAdminAuthenticator_PasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	a, err := NewAdminAuthenticator(&config.AdminConfig{PasswordHash: string(hash), Secret: "k"})
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, a.Expiry())
	_, err = a.Login("hashed-pw")
	assert.NoError(t, err)
}

func TestAdminAuthenticator_Disabled(t *testing.T) {
	a, err := NewAdminAuthenticator(&config.AdminConfig{Password: "pw"})
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	_, err = a.Login("pw")
	assert.ErrorIs(t, err, ErrAdminDisabled)
	assert.ErrorIs(t, a.Verify("anything"), ErrInvalidToken)
}
