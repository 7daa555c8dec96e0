package codec

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCFB8RoundTrip(t *testing.T) {
	secret, err := NewSharedSecret()
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	ew, err := NewEncryptWriter(&ciphertext, secret)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeated for length")
	_, err = ew.Write(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext.Bytes())

	dr, err := NewDecryptReader(&ciphertext, secret)
	require.NoError(t, err)
	got, err := io.ReadAll(dr)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestCFB8RoundTripAcrossSmallWrites(t *testing.T) {
	secret, err := NewSharedSecret()
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	ew, err := NewEncryptWriter(&ciphertext, secret)
	require.NoError(t, err)

	plaintext := []byte("byte-at-a-time streaming must match bulk encryption")
	for _, b := range plaintext {
		_, err := ew.Write([]byte{b})
		require.NoError(t, err)
	}

	dr, err := NewDecryptReader(&ciphertext, secret)
	require.NoError(t, err)
	got, err := io.ReadAll(dr)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}
