package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const (
	HeaderSignature = "X-Vigia-Signature"
	HeaderEvent     = "X-Vigia-Event"
	HeaderDelivery  = "X-Vigia-Delivery"
)

// Sign returns the value of HeaderSignature for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
