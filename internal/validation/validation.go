// Package validation checks credential formats before they reach the API
// client, preventing HTTP header injection.
package validation

import (
	"errors"
	"fmt"
)

const (
	maxTokenLength = 4096
	maxOrgIDLength = 128
)

// ErrEmptyToken and friends classify the rejection; all of them surface
// inline on the credential form, never on the error event channel.
var (
	ErrEmptyToken   = errors.New("session token is empty")
	ErrTokenTooLong = fmt.Errorf("session token exceeds %d characters", maxTokenLength)
	ErrInvalidToken = errors.New("session token contains invalid characters")
	ErrEmptyOrgID   = errors.New("organization id is empty")
	ErrOrgIDTooLong = fmt.Errorf("organization id exceeds %d characters", maxOrgIDLength)
	ErrInvalidOrgID = errors.New("organization id contains invalid characters")
)

// ValidateSessionToken accepts alphanumerics, hyphens, underscores, periods
// and the base64 characters + / =.
func ValidateSessionToken(token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if len(token) > maxTokenLength {
		return ErrTokenTooLong
	}
	for _, c := range token {
		if !isTokenChar(c) {
			return fmt.Errorf("%w: %q", ErrInvalidToken, c)
		}
	}
	return nil
}

// ValidateOrgID accepts UUID-like identifiers: alphanumerics, hyphens and
// underscores.
func ValidateOrgID(orgID string) error {
	if orgID == "" {
		return ErrEmptyOrgID
	}
	if len(orgID) > maxOrgIDLength {
		return ErrOrgIDTooLong
	}
	for _, c := range orgID {
		if !isOrgIDChar(c) {
			return fmt.Errorf("%w: %q", ErrInvalidOrgID, c)
		}
	}
	return nil
}

func isTokenChar(c rune) bool {
	return isOrgIDChar(c) || c == '.' || c == '+' || c == '/' || c == '='
}

func isOrgIDChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
