package reconcile

import "errors"

var (
	// ErrVoided is returned when a voided receipt is edited.
	ErrVoided = errors.New("receipt is voided")

	// ErrInvalidTransition is returned when a receipt is set to the status it already has.
	ErrInvalidTransition = errors.New("invalid status transition")
)
