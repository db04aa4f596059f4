// Package cipher implements the symmetric codec for group file payloads:
// AES-256 in CBC mode with PKCS7 padding, a random 16-byte IV prepended to
// the ciphertext, and base64 transport encoding.
//
// The cipher produces no authentication tag. Integrity is established
// out-of-band: callers compare the SHA-256 of the recovered plaintext against
// the file hash recorded in the ledger transaction.
package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the required key length in bytes.
const KeySize = 32

var (
	// ErrInvalidKey is returned for keys that do not decode to exactly
	// KeySize bytes, and for payloads too short to carry an IV.
	ErrInvalidKey = errors.New("invalid key length or format")

	// ErrDecrypt is returned for ciphertext that is not a whole number of
	// blocks or whose padding is malformed. It indicates corrupted
	// ciphertext or the wrong key and must never be retried.
	ErrDecrypt = errors.New("decryption failed")
)

// DecodeKey decodes a base64 key and validates its length.
func DecodeKey(keyB64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	return key, nil
}

// Encrypt encrypts plaintext under the base64-encoded 32-byte key and returns
// base64(IV || ciphertext). A fresh random IV is generated per call. Empty
// and arbitrary binary plaintexts are valid.
func Encrypt(plaintext []byte, keyB64 string) (string, error) {
	key, err := DecodeKey(keyB64)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. It fails with ErrInvalidKey on a bad key or a
// payload shorter than one IV, and with ErrDecrypt on ciphertext that is not
// a multiple of the block size or carries malformed padding.
func Decrypt(payloadB64, keyB64 string) ([]byte, error) {
	key, err := DecodeKey(keyB64)
	if err != nil {
		return nil, err
	}

	payload, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64: %v", ErrDecrypt, err)
	}
	if len(payload) < aes.BlockSize {
		return nil, fmt.Errorf("%w: payload shorter than IV", ErrInvalidKey)
	}

	iv, ciphertext := payload[:aes.BlockSize], payload[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecrypt)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	return append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padded length %d", ErrDecrypt, len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("%w: invalid padding byte", ErrDecrypt)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: inconsistent padding", ErrDecrypt)
		}
	}
	return data[:len(data)-padLen], nil
}
