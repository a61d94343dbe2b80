package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates an unknown, revoked or mistyped API token.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
