package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", KeySize)))
}

func TestSealOpen(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	sealed, err := c.Seal("shpat_123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "shpat_123")
	assert.NotContains(t, sealed, "=")

	again, err := c.Seal("shpat_123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shpat_123", plain)
}

func TestNewTokenCipherRejectsBadKeys(t *testing.T) {
	_, err := NewTokenCipher("not base64!")
	require.Error(t, err)

	_, err = NewTokenCipher(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestOpenRejectsTampering(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	_, err = c.Open("abc")
	assert.ErrorIs(t, err, ErrShortCiphertext)

	sealed, err := c.Seal("token")
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Open(base64.RawURLEncoding.EncodeToString(raw))
	require.Error(t, err)
}
