// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

const issuer = "sentinel"

// keyInfo binds derived keys to this use so the configured secret can be
// shared with other tooling without tokens becoming interchangeable.
const keyInfo = "sentinel ops api jwt hs256"

// ErrWeakSecret is returned for secrets shorter than MinSecretLength.
var ErrWeakSecret = fmt.Errorf("auth secret must be at least %d characters", MinSecretLength)

// Claims represents JWT claims
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// NewJWTManager creates a token manager using HMAC-SHA256.
func NewJWTManager(secret string, timeout time.Duration) (*JWTManager, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if timeout <= 0 {
		return nil, errors.New("token timeout must be positive")
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &JWTManager{secret: key, timeout: timeout, now: time.Now}, nil
}

// deriveKey expands secret into a 32-byte HMAC key with HKDF-SHA256.
func deriveKey(secret string) ([]byte, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}

// GenerateToken signs a token for operator, valid for the configured timeout.
func (m *JWTManager) GenerateToken(operator string) (string, error) {
	if operator == "" {
		return "", errors.New("operator name is required")
	}
	now := m.now()
	claims := &Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, issuer and expiry and returns
// the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Operator == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
