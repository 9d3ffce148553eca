package domain

import "errors"

// Storage-neutral lookup results shared by every repository driver.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
