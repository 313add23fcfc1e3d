package rtc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emory-app/voicechat/internal/policy"
	"github.com/emory-app/voicechat/internal/reliability"
)

// SignalingError is a non-2xx answer from the provider's signaling endpoint.
type SignalingError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *SignalingError) Error() string {
	msg := fmt.Sprintf("realtime connection failed: %s", e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *SignalingError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

// Signaler posts SDP offers to the realtime provider and returns its answer.
type Signaler struct {
	url    string
	client *http.Client
}

func NewSignaler(url string) *Signaler {
	return &Signaler{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Exchange sends offerSDP authorized by the scoped client secret.
func (s *Signaler) Exchange(ctx context.Context, clientSecret, offerSDP string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("create signaling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+clientSecret)
	req.Header.Set("Content-Type", "application/sdp")

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send signaling request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &SignalingError{
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       policy.Redact(strings.TrimSpace(string(body))),
		}
	}

	answer, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read signaling answer: %w", err)
	}
	if strings.TrimSpace(string(answer)) == "" {
		return "", fmt.Errorf("realtime connection failed: empty answer")
	}
	return string(answer), nil
}
