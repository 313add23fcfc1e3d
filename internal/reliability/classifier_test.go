package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableProviderError(t *testing.T) {
	if !IsRetryableProviderError("server_error") {
		t.Fatalf("server_error should be retryable")
	}
	if IsRetryableProviderError("invalid_request_error") {
		t.Fatalf("invalid_request_error should not be retryable")
	}
	if IsRetryableProviderError("") {
		t.Fatalf("empty type should not be retryable")
	}
}
