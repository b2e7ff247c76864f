package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d0dg3r/dockhand/internal/crypto"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := crypto.NewCipher([]byte("master-key"))
	require.NoError(t, err)

	for _, plain := range []string{"", "hunter2", "s3cr3t with spaces and ünïcode"} {
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, sealed)

		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestCipher_EncryptIsNonDeterministic(t *testing.T) {
	c, err := crypto.NewCipher([]byte("master-key"))
	require.NoError(t, err)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "a fresh nonce must be used per encryption")
}

func TestCipher_DecryptRejectsTampering(t *testing.T) {
	c, err := crypto.NewCipher([]byte("master-key"))
	require.NoError(t, err)

	sealed, err := c.Encrypt("payload")
	require.NoError(t, err)

	// Flip one character of the base64 payload.
	tampered := []byte(sealed)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}

	_, err = c.Decrypt(string(tampered))
	assert.Error(t, err)
}

func TestCipher_DecryptRejectsGarbage(t *testing.T) {
	c, err := crypto.NewCipher([]byte("master-key"))
	require.NoError(t, err)

	_, err = c.Decrypt("not base64 at all %%%")
	assert.Error(t, err)

	_, err = c.Decrypt("c2hvcnQ=") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestCipher_WrongKeyFailsToDecrypt(t *testing.T) {
	a, err := crypto.NewCipher([]byte("key-a"))
	require.NoError(t, err)
	b, err := crypto.NewCipher([]byte("key-b"))
	require.NoError(t, err)

	sealed, err := a.Encrypt("payload")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewCipher_EmptyKey(t *testing.T) {
	_, err := crypto.NewCipher(nil)
	assert.Error(t, err)
}
