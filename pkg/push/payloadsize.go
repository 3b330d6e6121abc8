package push

import "fmt"

// MaxPayloadSize is the largest serialized payload, in bytes, the provider
// accepts. Zero means no limit.
func (p Provider) MaxPayloadSize() int {
	switch p {
	case ProviderApple:
		return 4096
	case ProviderFirebase:
		return 4096
	case ProviderWeb:
		// 4096 byte record minus aes128gcm header, padding delimiter and tag.
		return 3993
	default:
		return 0
	}
}

// PayloadTooLargeError reports a payload that exceeds its provider's limit.
// Resending the same payload fails the same way, so it is never retried.
type PayloadTooLargeError struct {
	Provider Provider
	Length   int
	Limit    int
	Err      error
}

func (e *PayloadTooLargeError) Error() string {
	msg := fmt.Sprintf("%s payload of %d bytes exceeds the %d byte limit", e.Provider, e.Length, e.Limit)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *PayloadTooLargeError) Unwrap() error { return e.Err }

// CheckPayloadSize returns a *PayloadTooLargeError when payload is larger than
// the provider allows.
func CheckPayloadSize(provider Provider, payload []byte) error {
	limit := provider.MaxPayloadSize()
	if limit > 0 && len(payload) > limit {
		return &PayloadTooLargeError{Provider: provider, Length: len(payload), Limit: limit}
	}
	return nil
}
