package apns

// ErrorCode classifies the reason string of a rejected APNs request.
type ErrorCode int

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeBadCollapseID
	ErrorCodeBadDeviceToken
	ErrorCodeBadExpirationDate
	ErrorCodeBadMessageID
	ErrorCodeBadPriority
	ErrorCodeBadTopic
	ErrorCodeDeviceTokenNotForTopic
	ErrorCodeDuplicateHeaders
	ErrorCodeIdleTimeout
	ErrorCodeMissingDeviceToken
	ErrorCodeMissingTopic
	ErrorCodePayloadEmpty
	ErrorCodeTopicDisallowed
	ErrorCodeBadCertificate
	ErrorCodeBadCertificateEnvironment
	ErrorCodeExpiredProviderToken
	ErrorCodeForbidden
	ErrorCodeInvalidProviderToken
	ErrorCodeMissingProviderToken
	ErrorCodeBadPath
	ErrorCodeMethodNotAllowed
	ErrorCodeUnregistered
	ErrorCodePayloadTooLarge
	ErrorCodeTooManyProviderTokenUpdates
	ErrorCodeTooManyRequests
	ErrorCodeInternalServerError
	ErrorCodeServiceUnavailable
	ErrorCodeShutdown
)

var errorCodeReasons = map[ErrorCode]string{
	ErrorCodeBadCollapseID:               "BadCollapseId",
	ErrorCodeBadDeviceToken:              "BadDeviceToken",
	ErrorCodeBadExpirationDate:           "BadExpirationDate",
	ErrorCodeBadMessageID:                "BadMessageId",
	ErrorCodeBadPriority:                 "BadPriority",
	ErrorCodeBadTopic:                    "BadTopic",
	ErrorCodeDeviceTokenNotForTopic:      "DeviceTokenNotForTopic",
	ErrorCodeDuplicateHeaders:            "DuplicateHeaders",
	ErrorCodeIdleTimeout:                 "IdleTimeout",
	ErrorCodeMissingDeviceToken:          "MissingDeviceToken",
	ErrorCodeMissingTopic:                "MissingTopic",
	ErrorCodePayloadEmpty:                "PayloadEmpty",
	ErrorCodeTopicDisallowed:             "TopicDisallowed",
	ErrorCodeBadCertificate:              "BadCertificate",
	ErrorCodeBadCertificateEnvironment:   "BadCertificateEnvironment",
	ErrorCodeExpiredProviderToken:        "ExpiredProviderToken",
	ErrorCodeForbidden:                   "Forbidden",
	ErrorCodeInvalidProviderToken:        "InvalidProviderToken",
	ErrorCodeMissingProviderToken:        "MissingProviderToken",
	ErrorCodeBadPath:                     "BadPath",
	ErrorCodeMethodNotAllowed:            "MethodNotAllowed",
	ErrorCodeUnregistered:                "Unregistered",
	ErrorCodePayloadTooLarge:             "PayloadTooLarge",
	ErrorCodeTooManyProviderTokenUpdates: "TooManyProviderTokenUpdates",
	ErrorCodeTooManyRequests:             "TooManyRequests",
	ErrorCodeInternalServerError:         "InternalServerError",
	ErrorCodeServiceUnavailable:          "ServiceUnavailable",
	ErrorCodeShutdown:                    "Shutdown",
}

var errorCodesByReason = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(errorCodeReasons))
	for code, reason := range errorCodeReasons {
		m[reason] = code
	}
	return m
}()

// ParseErrorCode maps an APNs reason string to its ErrorCode. An empty reason
// means no error was reported and yields ok == false. A reason that is not
// recognised yields ErrorCodeUnknown.
func ParseErrorCode(reason string) (code ErrorCode, ok bool) {
	if reason == "" {
		return ErrorCodeUnknown, false
	}
	if code, found := errorCodesByReason[reason]; found {
		return code, true
	}
	return ErrorCodeUnknown, true
}

// Reason returns the exact APNs wire string, or "" for ErrorCodeUnknown.
func (c ErrorCode) Reason() string {
	return errorCodeReasons[c]
}

func (c ErrorCode) String() string {
	if r := c.Reason(); r != "" {
		return r
	}
	return "Unknown"
}

// InvalidToken reports whether the device token will never be deliverable.
func (c ErrorCode) InvalidToken() bool {
	switch c {
	case ErrorCodeBadDeviceToken, ErrorCodeUnregistered, ErrorCodeDeviceTokenNotForTopic:
		return true
	}
	return false
}

// Retryable reports whether resending the same request may succeed later.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrorCodeIdleTimeout,
		ErrorCodeExpiredProviderToken,
		ErrorCodeTooManyProviderTokenUpdates,
		ErrorCodeTooManyRequests,
		ErrorCodeInternalServerError,
		ErrorCodeServiceUnavailable,
		ErrorCodeShutdown:
		return true
	}
	return false
}
