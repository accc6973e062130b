package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRouteUnavailable  = errors.New("no route available")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidAmount     = errors.New("invalid amount")
)
