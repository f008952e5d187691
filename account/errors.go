package account

import "errors"

var (
	// ErrInvalidInput reports a username or password below the configured
	// minimum length.
	ErrInvalidInput = errors.New("account: invalid username or password format")

	// ErrDuplicateUsername reports a registration against a taken username.
	ErrDuplicateUsername = errors.New("account: username already exists")

	// ErrAuthFailure covers both unknown-username and wrong-password so the
	// caller cannot tell which part was wrong.
	ErrAuthFailure = errors.New("account: invalid credentials")

	// ErrNotFound reports a lookup of a non-existent account ID.
	ErrNotFound = errors.New("account: not found")
)
