package inventory

import "errors"

var (
	// ErrNotFound is returned when no article matches an id or code.
	ErrNotFound = errors.New("article not found")
	// ErrInvalid marks rejected input; the wrapping error carries the reason.
	ErrInvalid = errors.New("invalid article")
	// ErrInsufficientStock is returned when a removal would make stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)
