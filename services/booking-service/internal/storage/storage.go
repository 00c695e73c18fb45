// Package storage holds what the Record Store implementations share: the error vocabulary
// and row shapes. The sqlite and postgres subpackages implement the store itself.
package storage

import (
	"errors"
	"time"

	"github.com/sto-booking/stobot/libs/db"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is a primary-key or unique violation on users or services.
	ErrDuplicate = errors.New("record already exists")
	// ErrSlotTaken is a violation of the one-active-appointment-per-slot index.
	ErrSlotTaken = errors.New("slot already has an active appointment")
	// ErrReference is a foreign-key violation (unknown user or service).
	ErrReference = errors.New("referenced record does not exist")
	// ErrUnavailable means the store could not be reached even after reconnecting once.
	ErrUnavailable = db.ErrUnavailable
)

// JoinedAppointment is an appointment row with its service. Service is nil when the
// appointment points at a service row that no longer exists.
type JoinedAppointment struct {
	Appointment model.Appointment
	Service     *model.Service
}

// TimeLayout is how start times are stored as text: UTC, fixed width, so string order is
// time order.
const TimeLayout = "2006-01-02T15:04:05Z"

// SlotKey normalizes a slot instant to the stored form (UTC, minute precision).
func SlotKey(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
