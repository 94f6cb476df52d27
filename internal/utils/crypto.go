// internal/utils/crypto.go
package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignWebhook returns the hex HMAC-SHA256 of requestID || body.
func SignWebhook(secret, requestID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(requestID))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature compares the claimed signature in constant time.
// The header may carry the bare hex digest or a "ts=...,v1=<hex>" list.
func VerifyWebhookSignature(secret, requestID string, body []byte, header string) bool {
	claimed := signatureFromHeader(header)
	if claimed == "" {
		return false
	}
	claimedBytes, err := hex.DecodeString(claimed)
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(SignWebhook(secret, requestID, body))
	return hmac.Equal(expected, claimedBytes)
}

func signatureFromHeader(header string) string {
	header = strings.TrimSpace(header)
	if !strings.Contains(header, "=") {
		return header
	}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && key == "v1" {
			return value
		}
	}
	return ""
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
