package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// keyDictionary is the fixed ordered set of key phrases shared with the
// device firmware. A session is assigned one entry by index during the
// INIT handshake; the index travels on the wire, the phrase never does.
var keyDictionary = []string{
	"REPSRV-KEY-ALPHA-2019",
	"REPSRV-KEY-BRAVO-2019",
	"REPSRV-KEY-CHARLIE-2019",
	"REPSRV-KEY-DELTA-2019",
	"REPSRV-KEY-ECHO-2019",
	"REPSRV-KEY-FOXTROT-2019",
	"REPSRV-KEY-GOLF-2019",
	"REPSRV-KEY-HOTEL-2019",
	"REPSRV-KEY-INDIA-2019",
	"REPSRV-KEY-JULIET-2019",
}

// registrationSentinel is the plaintext every valid registration key must
// decrypt to when the device serial is used as key material.
const registrationSentinel = "ELTRADE-DEVICE-REG"

const (
	keyLen     = 32 // AES-256
	kdfIters   = 4096
	saltString = "cloudreport.v1"
)

var ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")

// DictionarySize returns the number of entries in the key dictionary.
func DictionarySize() int {
	return len(keyDictionary)
}

// DeriveKey picks a key phrase deterministically from the dictionary.
// Any non-negative index is valid; it wraps modulo the dictionary size.
func DeriveKey(index int) string {
	if index < 0 {
		index = -index
	}
	return keyDictionary[index%len(keyDictionary)]
}

// stretch turns arbitrary key material into an AES-256 key.
func stretch(keyMaterial string) []byte {
	return pbkdf2.Key([]byte(keyMaterial), []byte(saltString), kdfIters, keyLen, sha256.New)
}

// Encrypt encrypts plaintext with the given key material using AES-CFB
// and a fresh random IV, returning base64 text safe for the wire.
func Encrypt(plaintext, keyMaterial string) (string, error) {
	block, err := aes.NewCipher(stretch(keyMaterial))
	if err != nil {
		return "", fmt.Errorf("crypto: %w", err)
	}

	raw := []byte(plaintext)
	buf := make([]byte, aes.BlockSize+len(raw))

	iv := buf[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	cipher.NewCFBEncrypter(block, iv).XORKeyStream(buf[aes.BlockSize:], raw)

	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt reverses Encrypt. Malformed input yields an error, never a panic.
func Decrypt(ciphertext, keyMaterial string) (string, error) {
	buf, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(buf) < aes.BlockSize {
		return "", ErrMalformedCiphertext
	}

	block, err := aes.NewCipher(stretch(keyMaterial))
	if err != nil {
		return "", fmt.Errorf("crypto: %w", err)
	}

	iv := buf[:aes.BlockSize]
	raw := make([]byte, len(buf)-aes.BlockSize)
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(raw, buf[aes.BlockSize:])

	return string(raw), nil
}

// ValidateRegistrationKey checks a client-presented registration key by
// decrypting it with the device serial as key material and comparing the
// result against the registration sentinel. Any decryption failure means
// an invalid key, not a fatal error.
func ValidateRegistrationKey(serial, presentedKey string) bool {
	plain, err := Decrypt(presentedKey, serial)
	if err != nil {
		return false
	}
	return plain == registrationSentinel
}

// MakeRegistrationKey produces the key a device with the given serial is
// expected to present. Used by provisioning tooling and tests.
func MakeRegistrationKey(serial string) (string, error) {
	return Encrypt(registrationSentinel, serial)
}
