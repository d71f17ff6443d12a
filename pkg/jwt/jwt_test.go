package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testSecret, time.Hour)

	token, expireAt, err := svc.GenerateAccessToken("cli")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expireAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.ClientID)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestValidateExpired(t *testing.T) {
	svc := NewJWTService(testSecret, -time.Minute)
	token, _, err := svc.GenerateAccessToken("cli")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateWrongSecret(t *testing.T) {
	token, _, err := NewJWTService(testSecret, time.Hour).GenerateAccessToken("cli")
	require.NoError(t, err)

	_, err = NewJWTService("another-secret-another-secret-xx", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTService(testSecret, time.Hour).ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
