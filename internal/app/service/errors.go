package service

import "errors"

// Lifecycle errors. Callers match with errors.Is; the wrapped message
// carries the detail shown to the user.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrConcurrentModification = errors.New("permit was modified concurrently")
	ErrPermitNotFound         = errors.New("permit not found")
	ErrForbidden              = errors.New("actor is not allowed to perform this action")
	ErrBusinessTypeNotFound   = errors.New("business type not found")
	ErrNotificationNotFound   = errors.New("notification not found")
)
