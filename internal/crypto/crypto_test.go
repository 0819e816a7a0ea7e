package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyWrapsAroundDictionary(t *testing.T) {
	size := DictionarySize()
	require.Greater(t, size, 0)

	for i := 0; i < size; i++ {
		assert.Equal(t, DeriveKey(i), DeriveKey(i+size))
	}
	assert.Equal(t, DeriveKey(0), DeriveKey(size))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	messages := []string{
		"",
		"x",
		"hello world",
		"Shop1|host1|posdevice|1.0.0|mysql",
		string([]byte{0, 1, 2, 255, 254, 10, 13}),
	}

	for i := 0; i < DictionarySize(); i++ {
		key := DeriveKey(i)
		for _, m := range messages {
			ct, err := Encrypt(m, key)
			require.NoError(t, err)

			pt, err := Decrypt(ct, key)
			require.NoError(t, err)
			assert.Equal(t, m, pt)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	key := DeriveKey(3)

	a, err := Encrypt("same message", key)
	require.NoError(t, err)
	b, err := Encrypt("same message", key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	key := DeriveKey(0)

	_, err := Decrypt("not base64 at all!!!", key)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	// valid base64 but shorter than one block
	_, err = Decrypt("AAAA", key)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestValidateRegistrationKey(t *testing.T) {
	key, err := MakeRegistrationKey("SN123")
	require.NoError(t, err)

	assert.True(t, ValidateRegistrationKey("SN123", key))

	// wrong serial decrypts to garbage, never errors out
	assert.False(t, ValidateRegistrationKey("SN999", key))

	// malformed presented key is just invalid
	assert.False(t, ValidateRegistrationKey("SN123", "???"))
	assert.False(t, ValidateRegistrationKey("SN123", ""))
}
