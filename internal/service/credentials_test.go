package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	require.NotEqual(t, "password123", hash)

	require.True(t, VerifyPassword(hash, "password123"))
	require.False(t, VerifyPassword(hash, "password124"))
	require.False(t, VerifyPassword("not-a-hash", "password123"))
}
