package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// TokenSource yields the app-level JWT persisted by the auth flow.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token, typically from EMORY_TOKEN.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	v := strings.TrimSpace(string(t))
	if v == "" {
		return "", ErrMissingToken
	}
	return v, nil
}

// FileToken reads the token from a file on every call so a re-login is
// picked up without restarting.
type FileToken struct {
	Path string
}

func (t FileToken) Token() (string, error) {
	if strings.TrimSpace(t.Path) == "" {
		return "", ErrMissingToken
	}
	raw, err := os.ReadFile(t.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrMissingToken
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", ErrMissingToken
	}
	return v, nil
}

// ChainTokens returns the first token any source yields.
type ChainTokens []TokenSource

func (c ChainTokens) Token() (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		tok, err := src.Token()
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrMissingToken) {
			return "", err
		}
	}
	return "", ErrMissingToken
}
