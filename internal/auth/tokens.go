package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	issuer        = "pdf-rag-platform"
	revokedPrefix = "revoked:"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
)

// Claims identify the tenant every document and query is scoped to.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates tenant access tokens. Revocation is only
// enforced when a Redis client is configured.
type TokenManager struct {
	secret []byte
	rdb    *redis.Client
}

func NewTokenManager(secret string, rdb *redis.Client) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("ACCESS_SECRET must be at least 32 characters")
	}
	return &TokenManager{secret: []byte(secret), rdb: rdb}, nil
}

func (m *TokenManager) IssueAccessToken(tenantID string, ttl time.Duration) (string, time.Time, error) {
	if tenantID == "" {
		return "", time.Time{}, errors.New("tenant id is required")
	}

	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   tenantID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *TokenManager) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())

	if err != nil || !token.Valid || claims.TenantID == "" {
		return nil, ErrInvalidToken
	}

	if m.rdb != nil && claims.ID != "" {
		revoked, err := m.rdb.Exists(ctx, revokedPrefix+claims.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked == 1 {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// RevokeToken deny-lists the token until it would have expired anyway.
func (m *TokenManager) RevokeToken(ctx context.Context, claims *Claims) error {
	if m.rdb == nil {
		return errors.New("revocation requires redis")
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > 0 {
			ttl = remaining
		}
	}
	return m.rdb.Set(ctx, revokedPrefix+claims.ID, claims.TenantID, ttl).Err()
}
