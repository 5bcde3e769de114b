package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "https://clerk.example")
	token, err := v.Issue("user_1", time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", userID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("secret", "")
	token, err := v.Issue("user_1", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecretAndIssuer(t *testing.T) {
	token, err := NewVerifier("other", "").Issue("user_1", time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("secret", "").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err = NewVerifier("secret", "a").Issue("user_1", time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("secret", "b").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret", "").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmpty(t *testing.T) {
	_, err := NewVerifier("secret", "").Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
