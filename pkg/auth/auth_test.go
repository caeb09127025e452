package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-16-chars"

func TestTokenPairRoundTrip(t *testing.T) {
	pair, err := GenerateTokenPair("42", "someone", []string{"100", "101"}, testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := ValidateAccessToken(pair.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "someone", claims.Username)
	assert.Equal(t, []string{"100", "101"}, claims.GuildIDs)
}

func TestValidateExpiredToken(t *testing.T) {
	pair, err := GenerateTokenPair("42", "someone", nil, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateAccessToken(pair.AccessToken, testSecret)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateWrongSecret(t *testing.T) {
	pair, err := GenerateTokenPair("42", "someone", nil, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ValidateAccessToken(pair.AccessToken, "another-secret-entirely")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateGarbage(t *testing.T) {
	_, err := ValidateAccessToken("not.a.jwt", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	require.NoError(t, err)
	b, err := GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
}
