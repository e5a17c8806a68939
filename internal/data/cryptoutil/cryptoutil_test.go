package cryptoutil

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestGCMSealer_RoundTrip(t *testing.T) {
	s, err := NewGCMSealer(testKey())
	require.NoError(t, err)

	ct, err := s.Seal([]byte("whsec"), "webhook-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ct, "gcm1:"))
	assert.NotContains(t, ct, "whsec")

	pt, err := s.Open(ct, "webhook-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("whsec"), pt)
}

func TestGCMSealer_BindingMismatch(t *testing.T) {
	s, err := NewGCMSealer(testKey())
	require.NoError(t, err)

	ct, err := s.Seal([]byte("whsec"), "webhook-1")
	require.NoError(t, err)

	_, err = s.Open(ct, "webhook-2")
	assert.Error(t, err)
}

func TestGCMSealer_NonceIsRandom(t *testing.T) {
	s, err := NewGCMSealer(testKey())
	require.NoError(t, err)
	a, _ := s.Seal([]byte("x"), "b")
	b, _ := s.Seal([]byte("x"), "b")
	assert.NotEqual(t, a, b)
}

func TestGCMSealer_OpensNoop(t *testing.T) {
	s, err := NewGCMSealer(testKey())
	require.NoError(t, err)
	ct, _ := NoopSealer{}.Seal([]byte("legacy"), "")
	pt, err := s.Open(ct, "any")
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), pt)

	_, err = s.Open("v0:abc", "any")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestNewGCMSealer_KeyLength(t *testing.T) {
	_, err := NewGCMSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyLength)
}

func TestParseKey(t *testing.T) {
	key := testKey()

	got, err := ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	got, err = ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = ParseKey("too-short")
	assert.ErrorIs(t, err, ErrKeyLength)
}
