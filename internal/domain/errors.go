package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuantity indicates a negative or otherwise unusable quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Result is the uniform outcome of every cart mutation. Callers render
// inline feedback from it; mutation paths never panic past the coordinator.
type Result struct {
	Success bool
	Err     error
}

func OK() Result {
	return Result{Success: true}
}

func Fail(err error) Result {
	return Result{Success: false, Err: err}
}
