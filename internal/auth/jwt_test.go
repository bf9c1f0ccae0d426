package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()

	tok, err := svc.Generate(id, "a@b.com", "student")
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "student", claims.Role)
}

func TestJWTRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTService("one", 1).Generate(uuid.New(), "a@b.com", "student")
	require.NoError(t, err)

	_, err = NewJWTService("two", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHash(t *testing.T) {
	h, err := hashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, checkPassword("hunter22", h))
	assert.False(t, checkPassword("hunter23", h))
}
