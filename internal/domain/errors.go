package domain

import "errors"

// ErrNotFound is returned when an index or stored item does not exist.
var ErrNotFound = errors.New("not found")
