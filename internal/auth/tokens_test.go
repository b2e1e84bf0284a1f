package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)

	token, expiresAt, err := tm.IssueAccessToken("user-1", "user1@example.com", "free")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Second)

	userID, err := tm.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAccessTokenWrongSecretRejected(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
	token, _, err := tm.IssueAccessToken("user-1", "user1@example.com", "free")
	require.NoError(t, err)

	other := NewTokenManager("different-secret", "refresh-secret", 15*time.Minute, 30*24*time.Hour)
	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", -1*time.Minute, 30*24*time.Hour)
	token, _, err := tm.IssueAccessToken("user-1", "user1@example.com", "free")
	require.NoError(t, err)

	_, err = tm.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestNewRefreshTokenHashIsDeterministic(t *testing.T) {
	token, hash, err := NewRefreshToken()
	require.NoError(t, err)
	assert.Equal(t, HashRefreshToken(token), hash)
}

func TestNewRefreshTokenUnique(t *testing.T) {
	t1, _, err := NewRefreshToken()
	require.NoError(t, err)
	t2, _, err := NewRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}
