package utils

import (
	"crypto/aes"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
)

const keyLength = 16

// normalizeKey derives the AES-128 key from the configured secret: truncated
// to 16 bytes if longer, zero-padded if shorter.
func normalizeKey(key string) []byte {
	normalized := make([]byte, keyLength)
	copy(normalized, key)
	return normalized
}

// Encrypt encrypts a card number for storage using AES-128 in ECB mode with
// PKCS#7 padding and returns it base64-encoded.
//
// The scheme is deliberately deterministic: there is no IV, so equal
// plaintexts always produce equal ciphertexts. The store's uniqueness check
// on the encrypted column depends on that, at the cost of leaking equality.
// A hardened scheme would use authenticated encryption with a per-record
// nonce stored alongside the ciphertext.
func Encrypt(data, key string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("input data is empty")
	}

	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	// PKCS#7 padding
	plaintext := []byte(data)
	padding := aes.BlockSize - len(plaintext)%aes.BlockSize
	for i := 0; i < padding; i++ {
		plaintext = append(plaintext, byte(padding))
	}

	ciphertext := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt is the inverse of Encrypt. It fails on malformed base64, on
// ciphertext that is not a positive multiple of the block size, and on
// invalid padding (the usual symptom of a key mismatch).
func Decrypt(encryptedData, key string) (string, error) {
	if len(encryptedData) == 0 {
		return "", fmt.Errorf("encrypted data is empty")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("invalid ciphertext length: %d bytes", len(ciphertext))
	}

	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(plaintext[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	// Strip and verify PKCS#7 padding
	padding := int(plaintext[len(plaintext)-1])
	if padding == 0 || padding > aes.BlockSize {
		return "", fmt.Errorf("invalid padding value: %d", padding)
	}
	for i := len(plaintext) - padding; i < len(plaintext); i++ {
		if int(plaintext[i]) != padding {
			return "", fmt.Errorf("invalid padding byte at position %d", i)
		}
	}

	return string(plaintext[:len(plaintext)-padding]), nil
}

// MaskCardNumber derives the display mask: for a 16-digit number the familiar
// "**** **** **** dddd" form, otherwise asterisks followed by the last four
// characters. Inputs shorter than four characters collapse to "****".
func MaskCardNumber(number string) string {
	clean := stripSpaces(number)
	if len(clean) < 4 {
		return "****"
	}

	if len(clean) == cardNumberLength {
		return "**** **** **** " + clean[12:]
	}

	return strings.Repeat("*", len(clean)-4) + clean[len(clean)-4:]
}

// FormatCardNumber groups digits in runs of four separated by single spaces.
func FormatCardNumber(number string) string {
	clean := stripSpaces(number)
	var builder strings.Builder
	for i := 0; i < len(clean); i++ {
		if i > 0 && i%4 == 0 {
			builder.WriteByte(' ')
		}
		builder.WriteByte(clean[i])
	}
	return builder.String()
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
