package jwt

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-signing-secret-32ch!!"

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		expiration time.Duration
	}{
		{name: "standard access token", userID: "user-abc", expiration: 15 * time.Minute},
		{name: "short lived token", userID: "user-def", expiration: time.Second},
		{name: "day long token", userID: "user-ghi", expiration: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.userID, tt.expiration, testSecret)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}

			if strings.Count(token, ".") != 2 {
				t.Errorf("GenerateToken() produced malformed token: %q", token)
			}

			claims, err := ValidateToken(token, testSecret)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.UserID != tt.userID {
				t.Errorf("claims.UserID = %v, want %v", claims.UserID, tt.userID)
			}
			if claims.TokenType != "access" {
				t.Errorf("claims.TokenType = %v, want access", claims.TokenType)
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	token, err := GenerateRefreshToken("user-refresh", 7*24*time.Hour, testSecret)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	claims, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.TokenType != "refresh" {
		t.Errorf("claims.TokenType = %v, want refresh", claims.TokenType)
	}
	if claims.Subject != "user-refresh" {
		t.Errorf("claims.Subject = %v, want user-refresh", claims.Subject)
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	validToken, err := GenerateToken("user-abc", time.Hour, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	expiredToken, err := GenerateToken("user-abc", -time.Hour, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "expired token", token: expiredToken, secret: testSecret},
		{name: "wrong secret", token: validToken, secret: "some-other-secret"},
		{name: "garbage token", token: "not.a.jwt", secret: testSecret},
		{name: "empty token", token: "", secret: testSecret},
		{name: "truncated token", token: validToken[:len(validToken)/2], secret: testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token, tt.secret); err == nil {
				t.Error("ValidateToken() expected error but got none")
			}
		})
	}
}

func TestClaimsExpiry(t *testing.T) {
	expiration := 30 * time.Minute

	before := time.Now().Add(-time.Second)
	token, err := GenerateToken("user-abc", expiration, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(time.Second)

	claims, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	issuedAt := claims.IssuedAt.Time
	if issuedAt.Before(before) || issuedAt.After(after) {
		t.Errorf("IssuedAt = %v, want within [%v, %v]", issuedAt, before, after)
	}

	expiresAt := claims.ExpiresAt.Time
	if expiresAt.Before(before.Add(expiration)) || expiresAt.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt = %v, not %v after issuance", expiresAt, expiration)
	}
}

func BenchmarkGenerateToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := GenerateToken("bench-user", 15*time.Minute, testSecret); err != nil {
			b.Fatalf("GenerateToken() error = %v", err)
		}
	}
}

func BenchmarkValidateToken(b *testing.B) {
	token, _ := GenerateToken("bench-user", 15*time.Minute, testSecret)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, testSecret); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
