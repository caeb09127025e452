package encryption

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("an oauth access token")

	sealed, err := Seal(plaintext, testKey())
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Open(sealed, testKey())
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesFreshNonce(t *testing.T) {
	a, err := Seal([]byte("same input"), testKey())
	require.NoError(t, err)
	b, err := Seal([]byte("same input"), testKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := Seal([]byte("secret"), testKey())
	require.NoError(t, err)

	other := bytes.Repeat([]byte{0x43}, 32)
	_, err = Open(sealed, other)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenTampered(t *testing.T) {
	sealed, err := Seal([]byte("secret"), testKey())
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = Open(sealed, testKey())
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := Seal([]byte("secret"), []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestSealStringRoundTrip(t *testing.T) {
	sealed, err := SealString("a token", testKey())
	require.NoError(t, err)

	opened, err := OpenString(sealed, testKey())
	require.NoError(t, err)
	assert.Equal(t, "a token", opened)
}
