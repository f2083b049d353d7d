package arbiter

import "errors"

var (
	// ErrInvalidPath is returned for paths that cannot be parsed.
	ErrInvalidPath = errors.New("arbiter: invalid path")

	// ErrUnknownScheme is returned when no driver is registered for a scheme.
	ErrUnknownScheme = errors.New("arbiter: unknown scheme")
)
