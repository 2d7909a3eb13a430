package services

import "errors"

// Shared error taxonomy for the order/payment/delivery core. Controllers
// translate these to HTTP status codes; callers branch with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidState      = errors.New("operation not valid for current state")
	ErrDriverUnavailable = errors.New("driver unavailable")
	ErrNoActiveDelivery  = errors.New("no active delivery")
	ErrConflict          = errors.New("duplicate entry")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrGateway           = errors.New("payment gateway error")
	ErrValidation        = errors.New("validation error")
)
