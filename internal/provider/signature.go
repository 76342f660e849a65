package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader is the webhook header carrying the provider's HMAC.
const SignatureHeader = "X-Retell-Signature"

// VerifySignature checks a webhook body against its signature header:
// hex-encoded HMAC-SHA256 of the raw body keyed with the API key.
// Comparison is constant-time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
