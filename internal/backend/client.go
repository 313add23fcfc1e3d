package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emory-app/voicechat/internal/policy"
)

const DefaultTimeout = 10 * time.Second

// Client calls the EMORY REST backend for chat session bookkeeping.
type Client struct {
	baseURL string
	tokens  TokenSource
	timeout time.Duration
	client  *http.Client
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:  tokens,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// StartSession registers a new AI chat session and returns its id.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (StartResponse, error) {
	var out StartResponse
	if err := c.do(ctx, "start session", "/ai/chat/start", nil, req, &out); err != nil {
		return StartResponse{}, err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return StartResponse{}, errors.New("start session failed: empty sessionId")
	}
	return out, nil
}

// ClientSecret issues a short-lived credential scoped to sessionID.
func (c *Client) ClientSecret(ctx context.Context, sessionID string) (ClientSecretResponse, error) {
	var out ClientSecretResponse
	q := url.Values{"sessionId": {sessionID}}
	if err := c.do(ctx, "client secret", "/ai/realtime/client-secret", q, nil, &out); err != nil {
		return ClientSecretResponse{}, err
	}
	if strings.TrimSpace(out.ClientSecret) == "" {
		return ClientSecretResponse{}, errors.New("client secret failed: empty clientSecret")
	}
	return out, nil
}

func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	q := url.Values{"sessionId": {sessionID}}
	return c.do(ctx, "stop session", "/ai/chat/stop", q, nil, nil)
}

func (c *Client) SaveMessages(ctx context.Context, req SaveRequest) error {
	return c.do(ctx, "save messages", "/ai/chat/save", nil, req, nil)
}

func (c *Client) do(ctx context.Context, op, path string, query url.Values, body, out any) error {
	if c.tokens == nil {
		return ErrMissingToken
	}
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, u, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	res, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return fmt.Errorf("%s: send request: %w", op, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{
			Op:         op,
			StatusCode: res.StatusCode,
			Status:     res.Status,
			Body:       policy.Redact(strings.TrimSpace(string(snippet))),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
