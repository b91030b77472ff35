package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("ops", RoleAdmin, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" || claims.Role != RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl > 15*time.Minute || ttl < 14*time.Minute {
		t.Errorf("expiry in %v, want about 15m", ttl)
	}
}

func TestGenerateAccessToken_UnknownRole(t *testing.T) {
	if _, err := GenerateAccessToken("ops", Role("owner"), testSecret, time.Minute); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("error = %v, want ErrUnknownRole", err)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateAccessToken("ops", RoleViewer, testSecret, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	sign := func(c jwt.Claims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	now := time.Now()

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "another-secret"},
		{"garbage", "not.a.jwt", testSecret},
		{"expired", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))},
			Role:             RoleAdmin,
		}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"no expiry", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"},
			Role:             RoleAdmin,
		}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"no subject", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
			Role:             RoleAdmin,
		}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"unknown role", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
			Role:             "owner",
		}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"wrong algorithm", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
			Role:             RoleAdmin,
		}, jwt.SigningMethodHS512, []byte(testSecret)), testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermAuditRead, true},
		{RoleViewer, PermRegistryWrite, false},
		{RoleViewer, PermSystemAdmin, false},
		{RoleAdmin, PermRegistryWrite, true},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("owner"), PermAuditRead, false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}
