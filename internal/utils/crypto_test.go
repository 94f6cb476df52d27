// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := SignWebhook("secret", "req-1", body)

	assert.Len(t, sig, 64)
	assert.True(t, VerifyWebhookSignature("secret", "req-1", body, sig))
	assert.True(t, VerifyWebhookSignature("secret", "req-1", body, "ts=1700000000,v1="+sig))
	assert.True(t, VerifyWebhookSignature("secret", "req-1", body, " v1="+sig+" "))

	assert.False(t, VerifyWebhookSignature("other", "req-1", body, sig))
	assert.False(t, VerifyWebhookSignature("secret", "req-2", body, sig))
	assert.False(t, VerifyWebhookSignature("secret", "req-1", []byte(`{"id":"evt_2"}`), sig))
	assert.False(t, VerifyWebhookSignature("secret", "req-1", body, ""))
	assert.False(t, VerifyWebhookSignature("secret", "req-1", body, "ts=1700000000"))
	assert.False(t, VerifyWebhookSignature("secret", "req-1", body, "not-hex"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "añ", Truncate("añoz", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
