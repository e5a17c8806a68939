package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"event":"processing.completed","timestamp":"2024-01-01T00:00:00Z","data":{"job_id":"j1"}}`)
	secret := "s3cret"
	sig := Sign(body, secret)

	assert.Len(t, sig, 64)
	assert.True(t, Verify(body, sig, secret))
	assert.False(t, Verify(body, sig, "other"))
	assert.False(t, Verify([]byte(`{"event":"processing.failed"}`), sig, secret))
	assert.False(t, Verify(body, "not-hex", secret))
	assert.False(t, Verify(body, "", secret))
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("what do ya want for nothing?"), "Jefe")
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
