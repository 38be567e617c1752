// Package auth provides a pluggable validator for the optional token
// carried on a Connect frame. Pulse itself has no authorization policy —
// a token that fails validation is logged and the connection stays open;
// what a token means, and who issued it, is entirely up to the Validator
// implementation wired in by the deployment.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity a validated token resolves to.
type Claims struct {
	Subject string
	Role    string
	jwt.RegisteredClaims
}

// Validator decides whether a Connect frame's token is acceptable. A nil
// token is passed as an empty string; implementations that require a
// token should reject that case explicitly.
type Validator interface {
	Validate(token string) (Claims, error)
}

// AllowAll is a Validator that accepts every connection, used when
// RequireAuth is false. It never inspects the token.
type AllowAll struct{}

// Validate always succeeds.
func (AllowAll) Validate(string) (Claims, error) {
	return Claims{}, nil
}

// JWTValidator validates HMAC-signed JWTs, grounded on the teacher's
// internal/auth/jwt.go JWTManager but narrowed to the Validate operation
// Pulse's Connect handling needs, plus a test-token helper.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator builds a validator keyed on secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate parses and verifies token, returning its claims.
func (v *JWTValidator) Validate(token string) (Claims, error) {
	if token == "" {
		return Claims{}, errors.New("token required")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token claims")
	}
	return *claims, nil
}

// GenerateTestToken mints a short-lived HS256 token for local testing.
func (v *JWTValidator) GenerateTestToken(subject, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
