package repo

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyPaid means another payment order for the same commerce order
	// has already been captured.
	ErrAlreadyPaid = errors.New("commerce order already has a captured payment")
)
