package shared

import (
	"errors"
	"strings"
)

var (
	// ErrSessionMissing indicates a request reached a handler without a session.
	ErrSessionMissing = errors.New("session missing")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserMessage is implemented by errors that carry text safe to show users.
type UserMessage interface {
	UserMessage() string
}

// UserSafeMessage extracts a message suitable for a flash or form banner.
// Errors that do not opt in through UserMessage yield the fallback so internal
// details never reach the page.
func UserSafeMessage(err error, fallback string) string {
	var um UserMessage
	if errors.As(err, &um) {
		if msg := strings.TrimSpace(um.UserMessage()); msg != "" {
			return msg
		}
	}
	return fallback
}
