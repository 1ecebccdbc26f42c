package storage

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when a write violates a uniqueness or
	// referential constraint.
	ErrConflict = errors.New("storage: constraint violation")

	// ErrUnavailable wraps connectivity, timeout and driver failures.
	ErrUnavailable = errors.New("storage: unavailable")
)

// Page is an offset/limit window over a listing.
type Page struct {
	Offset int
	Limit  int
}

// PageFor converts a 1-based page number and size into an offset window.
func PageFor(page, size int) Page {
	return Page{Offset: (page - 1) * size, Limit: size}
}
