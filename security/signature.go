package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyWebhookSignature checks the X-Hub-Signature-256 style header
// ("sha256=<hex>") against the request body.
func VerifyWebhookSignature(body []byte, secret, header string) bool {
	if secret == "" {
		return true
	}
	received := strings.TrimPrefix(header, "sha256=")
	if received == "" {
		return false
	}
	expected := Hmac256(body, []byte(secret))
	return hmac.Equal([]byte(received), []byte(expected))
}
