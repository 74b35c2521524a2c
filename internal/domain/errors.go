package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidViewName   = errors.New("invalid view name")
	ErrInvalidResult     = errors.New("invalid build result")
	ErrInvalidPermission = errors.New("invalid permission")
	ErrItemExists        = errors.New("item already exists")
	ErrViewExists        = errors.New("view already exists")
	ErrPermissionDenied  = errors.New("permission denied")
)
