package model

import "time"

// Status is stored as a small integer so the legacy rows (0 / -1 / 1) read back unchanged.
type Status int

const (
	StatusCancelled Status = -1
	StatusActive    Status = 0
	// StatusCompleted is set outside the booking core (e.g. by staff after the visit).
	StatusCompleted Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsPast reports whether the appointment belongs to the history list.
func (s Status) IsPast() bool {
	return s != StatusActive
}

type Appointment struct {
	ID        int64
	UserID    int64
	ServiceID int64
	StartTime time.Time
	Status    Status
	CreatedAt time.Time
}

// AppointmentWithService is an appointment joined with the service it books.
type AppointmentWithService struct {
	Appointment Appointment
	Service     Service
}
