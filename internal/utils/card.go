package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Card brand names returned by CardBrand.
const (
	BrandVisa       = "VISA"
	BrandMastercard = "MASTERCARD"
	BrandMir        = "MIR"
	BrandUnknown    = "UNKNOWN"
)

const cardNumberLength = 16

var (
	visaPrefixes       = []string{"4000", "4001", "4002", "4003"}
	mastercardPrefixes = []string{"5000", "5001", "5002", "5003"}
	mirPrefixes        = []string{"2200", "2201", "2202", "2203"}

	prefixFamilies = [][]string{visaPrefixes, mastercardPrefixes, mirPrefixes}
)

// GenerateCardNumber generates a 16-digit card number: a brand prefix chosen
// uniformly across the three families, random body digits, and a Luhn check
// digit so the full number passes ValidateCardNumber.
func GenerateCardNumber() (string, error) {
	family, err := randomInt(len(prefixFamilies))
	if err != nil {
		return "", fmt.Errorf("failed to pick card prefix: %w", err)
	}
	prefixes := prefixFamilies[family]
	idx, err := randomInt(len(prefixes))
	if err != nil {
		return "", fmt.Errorf("failed to pick card prefix: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefixes[idx])
	for builder.Len() < cardNumberLength-1 {
		digit, err := randomInt(10)
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		builder.WriteByte(byte('0' + digit))
	}

	body := builder.String()
	return body + string(byte('0'+luhnCheckDigit(body))), nil
}

// GenerateExpiryDate returns an expiry date 2 to 5 whole years plus 0 to 11
// whole months from now, so it is always strictly in the future.
func GenerateExpiryDate() (time.Time, error) {
	years, err := randomInt(4)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to generate expiry date: %w", err)
	}
	months, err := randomInt(12)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to generate expiry date: %w", err)
	}
	return time.Now().AddDate(2+years, months, 0), nil
}

// ValidateCardNumber reports whether number is a 16-digit string passing the
// Luhn checksum.
func ValidateCardNumber(number string) bool {
	if len(number) != cardNumberLength {
		return false
	}

	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}

	return sum%10 == 0
}

// CardBrand classifies a card number by its 4-digit prefix.
func CardBrand(number string) string {
	if len(number) < 4 {
		return BrandUnknown
	}
	prefix := number[:4]
	for family, prefixes := range prefixFamilies {
		for _, p := range prefixes {
			if prefix == p {
				switch family {
				case 0:
					return BrandVisa
				case 1:
					return BrandMastercard
				default:
					return BrandMir
				}
			}
		}
	}
	return BrandUnknown
}

// luhnCheckDigit computes the check digit for a 15-digit body. The digit that
// would sit rightmost is the one being computed, so doubling starts at the
// body's last digit (one position left of where validation starts).
func luhnCheckDigit(body string) int {
	sum := 0
	alternate := true
	for i := len(body) - 1; i >= 0; i-- {
		digit := int(body[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}
	return (10 - sum%10) % 10
}

// randomInt returns a uniform value in [0, n) from a cryptographically strong
// source. crypto/rand.Int avoids the modulo bias of reducing raw bytes.
func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
