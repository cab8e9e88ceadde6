package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns 2n uppercase hex characters from a crypto source.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewOrderCode builds the short human-facing code printed on order summaries,
// e.g. "R-3FA2B1C4".
func NewOrderCode() (string, error) {
	code, err := GenerateCode(4)
	if err != nil {
		return "", err
	}
	return "R-" + code, nil
}

// GenerateToken returns n bytes of lowercase hex, used for operator API tokens.
func GenerateToken(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return hex.EncodeToString(byt), nil
}
