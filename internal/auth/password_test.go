package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("correct horse battery stale", hash))
	assert.False(t, VerifyPassword("", hash))
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("hunter2")
	require.NoError(t, err)
	h2, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.True(t, VerifyPassword("hunter2", h1))
	assert.True(t, VerifyPassword("hunter2", h2))
}

func TestVerifyPassword_MalformedStoredHash(t *testing.T) {
	t.Parallel()

	assert.False(t, VerifyPassword("x", "not base64 at all!!"))
	assert.False(t, VerifyPassword("x", ""))
	// valid base64 but wrong length
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	assert.False(t, VerifyPassword("x", short))
}
