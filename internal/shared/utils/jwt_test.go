package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken_Success(t *testing.T) {
	userID := uuid.New()
	secret := "test-secret"

	token, err := GenerateToken(secret, time.Hour, userID, "user")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "user", claims.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("secret1", time.Hour, uuid.New(), "user")
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret2")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidateToken_Expired(t *testing.T) {
	token, err := GenerateToken("secret", -time.Minute, uuid.New(), "user")
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidateToken_NilUser(t *testing.T) {
	token, err := GenerateToken("secret", time.Hour, uuid.Nil, "user")
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestValidateToken_Malformed(t *testing.T) {
	_, err := ValidateToken("malformed-token", "secret")
	assert.Equal(t, ErrInvalidToken, err)

	_, err = ValidateToken("", "secret")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestGenerateToken_DifferentRoles(t *testing.T) {
	userID := uuid.New()
	for _, role := range []string{"user", "service", "admin"} {
		token, err := GenerateToken("test-secret", time.Hour, userID, role)
		require.NoError(t, err)

		claims, err := ValidateToken(token, "test-secret")
		require.NoError(t, err)
		assert.Equal(t, role, claims.Role)
	}
}
