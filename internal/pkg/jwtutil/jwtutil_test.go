package jwtutil

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("s3cret", SubjectUploadWebhook, "chatpdf", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken("s3cret", token, SubjectUploadWebhook)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != SubjectUploadWebhook || claims.Issuer != "chatpdf" {
		t.Fatalf("claims = %+v", claims.RegisteredClaims)
	}
}

func TestParseRejects(t *testing.T) {
	valid, err := GenerateToken("s3cret", SubjectUploadWebhook, "chatpdf", 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   SubjectUploadWebhook,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	tests := []struct {
		name    string
		secret  string
		token   string
		subject string
	}{
		{name: "wrong secret", secret: "other", token: valid, subject: SubjectUploadWebhook},
		{name: "wrong subject", secret: "s3cret", token: valid, subject: "admin"},
		{name: "garbage", secret: "s3cret", token: "not-a-jwt", subject: SubjectUploadWebhook},
		{name: "expired", secret: "s3cret", token: expired, subject: SubjectUploadWebhook},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.secret, tt.token, tt.subject); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("ParseToken error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	if _, err := GenerateToken("", SubjectUploadWebhook, "chatpdf", 0); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateRejectsNegativeTTL(t *testing.T) {
	if _, err := GenerateToken("s3cret", SubjectUploadWebhook, "chatpdf", -time.Minute); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
