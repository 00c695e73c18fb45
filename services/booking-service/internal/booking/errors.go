package booking

import (
	"errors"

	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// Validation errors: the request was rejected before anything was written.
var (
	ErrInvalidFormat       = errors.New("invalid timestamp format, want YYYY-MM-DD HH:MM")
	ErrInvalidDate         = errors.New("invalid date format, want YYYY-MM-DD")
	ErrServiceNotFound     = errors.New("service not found")
	ErrOutsideWorkingHours = errors.New("requested time is outside working hours")
	ErrUserNotRegistered   = errors.New("user is not registered")
	ErrInvalidContact      = errors.New("phone number and full name are required")
)

// ErrSlotTaken is the conflict outcome of a booking race or of booking an occupied slot.
var ErrSlotTaken = errors.New("slot is already taken")

// ErrStorageUnavailable is returned when the store stayed unreachable after its reconnect attempt.
var ErrStorageUnavailable = storage.ErrUnavailable

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrOutsideWorkingHours) ||
		errors.Is(err, ErrUserNotRegistered) ||
		errors.Is(err, ErrInvalidContact)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken)
}
