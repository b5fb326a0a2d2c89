package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingExpired       = errors.New("booking has expired")
	ErrBookingAlreadyExists = errors.New("booking already exists")
	ErrInvalidBookingStatus = errors.New("invalid booking status")

	// Ticket errors
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketUnavailable = errors.New("ticket is not available")
	ErrTicketLocked      = errors.New("ticket is locked by another booking")

	// Validation errors
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidTicketID         = errors.New("invalid ticket id")
	ErrInvalidBookingReference = errors.New("invalid booking reference")
	ErrInvalidConcurrencyTier  = errors.New("invalid concurrency tier")
	ErrInvalidAmount           = errors.New("amount cannot be negative")

	// Queue errors
	ErrNotInQueue = errors.New("booking is not in queue")

	// Rate limit errors
	ErrRateLimited = errors.New("too many status requests for this booking")

	// External collaborator errors
	ErrSupplierUnavailable = errors.New("supplier reservation unavailable")
	ErrPaymentSession      = errors.New("payment session could not be created")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrTicketNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidBookingReference) ||
		errors.Is(err, ErrInvalidConcurrencyTier) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidBookingStatus)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrBookingAlreadyExists) ||
		errors.Is(err, ErrTicketUnavailable) ||
		errors.Is(err, ErrTicketLocked)
}

// IsExpiredError checks if the error is an expiration error
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrBookingExpired)
}

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
