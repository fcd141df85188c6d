package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-backend/pkg/config"
	"lms-backend/pkg/models"
)

func testManager() *TokenManager {
	return NewTokenManager(&config.Config{
		SecretKey:                "unit-test-secret",
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 30,
		RefreshTokenExpireDays:   7,
	})
}

func testUser() models.User {
	u := models.User{Email: "ann@example.com", Username: "ann", Role: models.RoleHR, IsActive: true}
	u.ID = 42
	return u
}

func TestIssueAndVerify(t *testing.T) {
	m := testManager()
	pair, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, 1800, pair.ExpiresIn)

	claims, err := m.Verify(pair.AccessToken, AccessToken)
	require.NoError(t, err)
	id, _ := claims.UserID()
	assert.Equal(t, uint(42), id)
	assert.Equal(t, models.RoleHR, claims.Role)
	assert.True(t, claims.IsActive)

	claims, err = m.Verify(pair.RefreshToken, RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, claims.Email)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	m := testManager()
	pair, err := m.Issue(testUser())
	require.NoError(t, err)

	_, err = m.Verify(pair.RefreshToken, AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
	_, err = m.Verify(pair.AccessToken, RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestVerifyRejectsExpiredAndForeign(t *testing.T) {
	m := testManager()
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := m.Issue(testUser())
	require.NoError(t, err)
	_, err = m.Verify(pair.AccessToken, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenManager(&config.Config{SecretKey: "other", Algorithm: "HS256", AccessTokenExpireMinutes: 30, RefreshTokenExpireDays: 7})
	pair, err = other.Issue(testUser())
	require.NoError(t, err)
	_, err = m.Verify(pair.AccessToken, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("not-a-token", AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
