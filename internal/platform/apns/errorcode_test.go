package apns_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/apns"
)

func TestParseErrorCode(t *testing.T) {
	t.Run("No reason is not an error", func(t *testing.T) {
		_, ok := apns.ParseErrorCode("")
		assert.False(t, ok)
	})

	t.Run("Known reason", func(t *testing.T) {
		code, ok := apns.ParseErrorCode("BadDeviceToken")
		assert.True(t, ok)
		assert.Equal(t, apns.ErrorCodeBadDeviceToken, code)
		assert.Equal(t, "BadDeviceToken", code.Reason())
	})

	t.Run("Unknown reason", func(t *testing.T) {
		code, ok := apns.ParseErrorCode("TotallyNewCode")
		assert.True(t, ok)
		assert.Equal(t, apns.ErrorCodeUnknown, code)
		assert.Equal(t, "Unknown", code.String())
		assert.Empty(t, code.Reason())
	})

	t.Run("Matching is case sensitive", func(t *testing.T) {
		code, ok := apns.ParseErrorCode("baddevicetoken")
		assert.True(t, ok)
		assert.Equal(t, apns.ErrorCodeUnknown, code)
	})

	t.Run("Every code round trips through its wire string", func(t *testing.T) {
		count := 0
		for code := apns.ErrorCodeBadCollapseID; code <= apns.ErrorCodeShutdown; code++ {
			parsed, ok := apns.ParseErrorCode(code.Reason())
			assert.True(t, ok)
			assert.Equal(t, code, parsed, code.Reason())
			count++
		}
		assert.Equal(t, 28, count)
	})
}

func TestErrorCode_Classification(t *testing.T) {
	assert.True(t, apns.ErrorCodeUnregistered.InvalidToken())
	assert.True(t, apns.ErrorCodeDeviceTokenNotForTopic.InvalidToken())
	assert.False(t, apns.ErrorCodeTopicDisallowed.InvalidToken())

	assert.True(t, apns.ErrorCodeServiceUnavailable.Retryable())
	assert.True(t, apns.ErrorCodeTooManyRequests.Retryable())
	assert.False(t, apns.ErrorCodeBadDeviceToken.Retryable())
	assert.False(t, apns.ErrorCodeUnknown.Retryable())
}
