package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndValidate(t *testing.T) {
	m, err := NewTokenManager(testSecret, nil)
	if err != nil {
		t.Fatal(err)
	}

	token, exp, err := m.IssueAccessToken("tenant-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is in the past", exp)
	}

	claims, err := m.ValidateAccessToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.TenantID != "tenant-a" || claims.ID == "" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateRejects(t *testing.T) {
	m, _ := NewTokenManager(testSecret, nil)
	other, _ := NewTokenManager(strings.Repeat("z", 32), nil)
	ctx := context.Background()

	expired, _, _ := m.IssueAccessToken("tenant-a", -time.Minute)
	foreign, _, _ := other.IssueAccessToken("tenant-a", time.Hour)

	noTenant, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TenantID: "tenant-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"missing tenant": noTenant,
		"alg none":       noneAlg,
		"garbage":        "not.a.jwt",
	} {
		if _, err := m.ValidateAccessToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: error = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestNewTokenManagerShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", nil); err == nil {
		t.Error("expected error for short secret")
	}
}
