package booking

import "errors"

var (
	ErrEventNotFound           = errors.New("event not found")
	ErrEventExpired            = errors.New("event already passed")
	ErrSoldOut                 = errors.New("no tickets available")
	ErrDuplicateBooking        = errors.New("ticket already booked for this event")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrAlreadyCancelled        = errors.New("booking is already cancelled")
	ErrAssociatedEventNotFound = errors.New("associated event not found")
	ErrRateLimited             = errors.New("rate limited")
)
