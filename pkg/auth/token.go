// Package auth verifies bearer tokens and cleans user-supplied identity
// fields. Credential storage and login flows live outside this service; the
// token issuer exists for local tooling and tests.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-team-slim/pkg/domain"
)

const (
	// DefaultTokenTTL is the lifetime of issued tokens.
	DefaultTokenTTL = 15 * time.Minute

	// DefaultIssuer is the issuer claim used when none is configured.
	DefaultIssuer = "simple-team"

	minSecretLen = 32
)

// TokenConfig holds token configuration.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Claims are the claims of an access token. Subject carries the user id;
// role and status are always read from the user store, never from the token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 access tokens.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.Secret) < minSecretLen {
		return nil, errors.New("token secret must be at least 32 characters")
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	if config.TTL == 0 {
		config.TTL = DefaultTokenTTL
	}
	return &TokenService{config: config, now: time.Now}, nil
}

// Issue signs a token for userID. A zero ttl uses the configured TTL.
func (s *TokenService) Issue(userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.config.TTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate verifies signature, expiry and issuer and returns the claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return s.config.Secret, nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// UserID verifies a token and returns its subject.
func (s *TokenService) UserID(tokenString string) (uuid.UUID, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return id, nil
}
