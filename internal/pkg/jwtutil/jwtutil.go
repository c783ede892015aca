package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubjectUploadWebhook identifies tokens minted for the upload server's hook calls.
const SubjectUploadWebhook = "upload-webhook"

var ErrInvalidToken = errors.New("invalid token")

type ServiceClaims struct {
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for subject. A zero ttl produces a token without expiry.
func GenerateToken(secret, subject, issuer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("generate token failed: empty secret")
	}
	if ttl < 0 {
		return "", fmt.Errorf("generate token failed: negative ttl %s", ttl)
	}
	now := time.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature, expiry and subject of tokenString.
func ParseToken(secret, tokenString, subject string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(subject))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
