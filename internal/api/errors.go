package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for outcomes that carry no extra detail.
var (
	// ErrUnauthorized means the session token was rejected (HTTP 401).
	ErrUnauthorized = errors.New("session expired, update your session token in settings")
	// ErrRateLimited means the API returned HTTP 429. It drives backoff in
	// the refresher and is never surfaced to the user directly.
	ErrRateLimited = errors.New("rate limited by the usage API")
)

// ServerError is an HTTP 5xx (or otherwise unexpected) status response.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("usage API returned HTTP %d", e.Status)
}

// NetworkError is a transport failure: DNS, timeout, TLS, refused connection.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError is a 2xx response whose body could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse usage response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err classifies as an HTTP 429 outcome.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// UserMessage maps a fetch error to the text shown to the user. Rate limits
// are excluded by the caller before this is reached, everything else maps to
// either the re-auth prompt or a generic retryable message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Session expired. Please update your session token in Settings."
	default:
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return "Network error. Check your internet connection."
		}
		return err.Error()
	}
}
