package kraken

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey marks EAPI:Invalid key responses; the client enters a long lockout.
	ErrInvalidKey = errors.New("kraken: invalid key")
	// ErrInvalidNonce marks EAPI:Invalid nonce responses after retries are exhausted.
	ErrInvalidNonce = errors.New("kraken: invalid nonce")
	// ErrRateLimited marks EAPI:Rate limit exceeded responses; the client enters a short lockout.
	ErrRateLimited = errors.New("kraken: rate limit exceeded")
	// ErrUnknownTimeframe is returned by OHLC for labels outside the interval table.
	ErrUnknownTimeframe = errors.New("kraken: unknown timeframe")
)

// Error message fragments used to classify the venue's error list.
const (
	msgInvalidKey      = "EAPI:Invalid key"
	msgInvalidNonce    = "EAPI:Invalid nonce"
	msgRateLimit       = "EAPI:Rate limit exceeded"
	msgInternalError   = "EGeneral:Internal error"
	msgFeatureDisabled = "EAPI:Feature disabled"
)

// HTTPError is a transport-level failure (non-2xx status).
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("kraken %s %s status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// APIError is a 2xx response carrying a non-empty error list.
type APIError struct {
	Path     string
	Messages []string
	kind     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kraken %s: %s", e.Path, strings.Join(e.Messages, "; "))
}

// Unwrap exposes the classified sentinel, if any.
func (e *APIError) Unwrap() error {
	return e.kind
}

// Contains reports whether any message contains fragment.
func (e *APIError) Contains(fragment string) bool {
	for _, m := range e.Messages {
		if strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

func classify(path string, messages []string) *APIError {
	e := &APIError{Path: path, Messages: messages}
	switch {
	case e.Contains(msgInvalidKey):
		e.kind = ErrInvalidKey
	case e.Contains(msgInvalidNonce):
		e.kind = ErrInvalidNonce
	case e.Contains(msgRateLimit):
		e.kind = ErrRateLimited
	}
	return e
}
