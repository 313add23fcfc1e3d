package reliability

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableProviderError classifies realtime provider error types that a
// fresh connect is likely to get past.
func IsRetryableProviderError(errorType string) bool {
	switch errorType {
	case "server_error", "rate_limit_exceeded", "session_expired":
		return true
	default:
		return false
	}
}
