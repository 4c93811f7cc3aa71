package booking

import "errors"

var (
	// ErrSlotTaken means the booking race was lost: an active appointment
	// already holds the (provider, time) pair. Recoverable; callers should
	// re-query availability.
	ErrSlotTaken = errors.New("slot already booked")

	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal is returned for transitions on a completed or
	// cancelled appointment. Terminal states are final.
	ErrAlreadyTerminal = errors.New("appointment already completed or cancelled")

	ErrProviderInactive = errors.New("provider is not accepting bookings")

	ErrReviewExists = errors.New("appointment already reviewed")

	ErrInvalidReview = errors.New("invalid review")

	ErrNotCompleted = errors.New("appointment is not completed")
)
