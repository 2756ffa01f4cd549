// Package security issues and verifies the per-request service tokens the
// scanner backend trusts. The signing secret is shared with the backend only
// and never with the browser or the session layer.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"deadinternet.report/gateway/internal/tier"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or
	// signed with the wrong key or algorithm.
	ErrInvalidToken = errors.New("invalid token")
)

// ServiceClaims holds the JWT claims of a service token. This is the entire
// claim set the backend sees: a closed record, never a pass-through bag.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
}

// TokenProvider signs and verifies HS256 service tokens with the backend-shared secret.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenProvider returns a TokenProvider signing with secret. ttl bounds
// each token's validity; the backend contract uses one hour.
func NewTokenProvider(secret []byte, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) == 0 {
		return nil, errors.New("security: service token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("security: service token TTL must be positive")
	}
	return &TokenProvider{secret: secret, ttl: ttl}, nil
}

// Issue signs a fresh service token for a single outbound request.
// Subject, email, name, and tierValue must come from the server-side session
// credential; callers must never feed values supplied by the client request.
func (p *TokenProvider) Issue(subject, email, name string, tierValue tier.Tier) (token string, expiresAt time.Time, err error) {
	if !tierValue.Valid() {
		tierValue = tier.Ghost
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Name:  name,
		Tier:  tierValue.String(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = t.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify parses and validates a service token (signature, exp, alg pinned to
// HS256). This is the backend's side of the contract; the gateway uses it in
// tests and never on the request path.
func (p *TokenProvider) Verify(tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
