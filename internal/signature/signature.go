// Package signature computes and checks the HMAC-SHA256 signatures the
// payment provider attaches to checkout results and webhook deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName carries the webhook signature.
const HeaderName = "X-Razorpay-Signature"

// Compute returns the lowercase hex HMAC-SHA256 of message under secret.
// An empty secret is a configuration bug and panics.
func Compute(secret, message []byte) string {
	return hex.EncodeToString(sum(secret, message))
}

// Verify reports whether provided is the hex signature of message under
// secret. Malformed or empty signatures yield false.
func Verify(secret, message []byte, provided string) bool {
	expected := sum(secret, message)
	provided = strings.TrimSpace(provided)
	if len(provided) != hex.EncodedLen(sha256.Size) {
		return false
	}
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(decoded, expected)
}

// PaymentMessage is the canonical string signed for a checkout result.
func PaymentMessage(paymentOrderID, paymentID string) []byte {
	return []byte(paymentOrderID + "|" + paymentID)
}

func sum(secret, message []byte) []byte {
	if len(secret) == 0 {
		panic("signature: empty secret")
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
