package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndValidateJWT(t *testing.T) {
	token, err := GenerateJWT("01HZX3G9Q8", true, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "01HZX3G9Q8", claims.UserID)
	assert.Equal(t, "01HZX3G9Q8", claims.Subject)
	assert.True(t, claims.IsModerator)
}

func TestValidateJWT_Rejects(t *testing.T) {
	valid, err := GenerateJWT("u1", false, testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("u1", false, testSecret, -time.Minute)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "u1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]struct {
		token  string
		secret string
	}{
		"wrong secret": {valid, "other"},
		"expired":      {expired, testSecret},
		"no expiry":    {noExpiry, testSecret},
		"wrong alg":    {wrongAlg, testSecret},
		"garbage":      {"not.a.token", testSecret},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestGenerateJWT_RequiresUser(t *testing.T) {
	_, err := GenerateJWT("", false, testSecret, time.Hour)
	assert.Error(t, err)
}
