package domain

import "errors"

var (
	// ErrStorage indicates the underlying store was unreachable or a write
	// failed. Callers surface it as a "try again" message.
	ErrStorage = errors.New("storage unavailable")

	// ErrNotFound indicates a lookup matched no row.
	ErrNotFound = errors.New("not found")

	// ErrNotLinked indicates a chat account has no linked game account.
	ErrNotLinked = errors.New("account not linked")

	// ErrInvalidParameter indicates a metric or period value outside the
	// accepted set.
	ErrInvalidParameter = errors.New("invalid parameter")
)
