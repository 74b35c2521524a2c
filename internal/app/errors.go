package app

import "errors"

// ErrNotFound and related errors describe lookup and input failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidFeedFilter = errors.New("invalid feed filter")
)
