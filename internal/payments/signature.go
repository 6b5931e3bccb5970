package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Signature computes the hex-encoded HMAC-SHA512 of body under secret, the
// scheme NOWPayments uses for the x-nowpayments-sig IPN header.
func Signature(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a presented signature against the raw request body.
// Hex case is normalized before the constant-time compare; an empty or absent
// signature never verifies.
func VerifySignature(secret, body []byte, presented string) bool {
	presented = strings.ToLower(strings.TrimSpace(presented))
	if presented == "" {
		return false
	}
	expected := Signature(secret, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}
