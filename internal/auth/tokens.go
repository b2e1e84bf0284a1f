package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload signed into an access token (§4.11: sub,
// email, plan, type). type is always "access"; the guard middleware
// rejects anything else to prevent refresh-token misuse.
type AccessClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Plan   string `json:"plan"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the access/refresh token pair described
// in spec §4.11: a short-lived signed JWT access token, and an opaque
// long-lived refresh token whose SHA-256 hash is the only thing persisted.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager builds a TokenManager from configured secrets and TTLs.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken returns a signed JWT carrying the user's identity and
// plan, expiring after the configured access TTL.
func (tm *TokenManager) IssueAccessToken(userID, email, plan string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.accessTTL)
	claims := AccessClaims{
		UserID: userID,
		Email:  email,
		Plan:   plan,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken parses and validates a signed access token, rejecting
// anything whose type claim isn't "access" (§4.11 anti refresh-token-misuse
// guard), and returns the user id it was issued for.
func (tm *TokenManager) VerifyAccessToken(raw string) (string, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.accessSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("access token invalid")
	}
	if claims.Type != "access" {
		return "", fmt.Errorf("wrong token type: %s", claims.Type)
	}
	return claims.UserID, nil
}

// RefreshTokenTTL exposes the configured refresh-token lifetime so callers
// can compute an expiry when persisting the new token's hash.
func (tm *TokenManager) RefreshTokenTTL() time.Duration {
	return tm.refreshTTL
}

// NewRefreshToken generates a random opaque refresh token and its storage
// hash. Only HashRefreshToken(token) is ever persisted (§4.11 rotation).
func NewRefreshToken() (token string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashRefreshToken(token), nil
}

// HashRefreshToken returns the SHA-256 hex digest of a raw refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
