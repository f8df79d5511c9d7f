package auth

import (
	"errors"
	"time"

	"dovepay/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminSubject = "admin"
	issuer       = "dovepay"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidPassword = errors.New("invalid password")
	ErrAdminDisabled   = errors.New("admin login is not configured")
)

// AdminAuthenticator checks the shared admin password and issues session
// tokens. There is one admin identity and no revocation list.
type AdminAuthenticator struct {
	hash   []byte
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewAdminAuthenticator hashes the configured password once. Login is disabled
// when neither a password nor a hash is configured, or the secret is empty.
func NewAdminAuthenticator(cfg *config.AdminConfig) (*AdminAuthenticator, error) {
	a := &AdminAuthenticator{
		secret: []byte(cfg.Secret),
		expiry: cfg.TokenExpiry,
		now:    time.Now,
	}
	if a.expiry <= 0 {
		a.expiry = 24 * time.Hour
	}
	switch {
	case cfg.PasswordHash != "":
		a.hash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		a.hash = hash
	}
	return a, nil
}

func (a *AdminAuthenticator) Enabled() bool {
	return len(a.hash) > 0 && len(a.secret) > 0
}

// Expiry is how long an issued token stays valid.
func (a *AdminAuthenticator) Expiry() time.Duration {
	return a.expiry
}

// Login verifies password and returns a signed token.
func (a *AdminAuthenticator) Login(password string) (string, error) {
	if !a.Enabled() {
		return "", ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses an admin token and checks signature, expiry and subject.
func (a *AdminAuthenticator) Verify(tokenString string) error {
	if !a.Enabled() || tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject != adminSubject {
		return ErrInvalidToken
	}
	return nil
}
