package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// Auth errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims is the bearer token issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID  `json:"user_id"`
	Role   model.Role `json:"role"`
}

// Actor returns the caller identity carried by the token.
func (c *Claims) Actor() model.Actor {
	return model.Actor{UserID: c.UserID, Role: c.Role}
}

// TokenDenylist remembers revoked token ids until they would expire anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthService validates bearer tokens. Tokens are issued by the identity
// provider; Issue exists for tooling and tests sharing the secret.
type AuthService struct {
	secret   []byte
	expiry   time.Duration
	denylist TokenDenylist
}

// NewAuthService creates a new AuthService. A nil denylist disables revocation.
func NewAuthService(secret string, expiry time.Duration, denylist TokenDenylist) *AuthService {
	return &AuthService{secret: []byte(secret), expiry: expiry, denylist: denylist}
}

// Issue signs a token for actor.
func (s *AuthService) Issue(actor model.Actor, now time.Time) (string, error) {
	if !actor.Role.Valid() {
		return "", fmt.Errorf("%w: role %q", ErrValidation, actor.Role)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID: actor.UserID,
		Role:   actor.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == uuid.Nil || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing identity", ErrTokenInvalid)
	}
	return claims, nil
}

// CheckRevoked fails with ErrTokenRevoked when the token was revoked.
func (s *AuthService) CheckRevoked(ctx context.Context, claims *Claims) error {
	if s.denylist == nil || claims.ID == "" {
		return nil
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

// Revoke invalidates a token for the rest of its lifetime.
func (s *AuthService) Revoke(ctx context.Context, claims *Claims, now time.Time) error {
	if s.denylist == nil || claims.ID == "" {
		return nil
	}
	ttl := s.expiry
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(now)
	}
	if ttl <= 0 {
		return nil
	}
	return s.denylist.Revoke(ctx, claims.ID, ttl)
}
