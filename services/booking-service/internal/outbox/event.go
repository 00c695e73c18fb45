package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table in the same transaction
// as the change it describes. The Kafka topic name equals EventType.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
}

// Record is an outbox row waiting to be published.
type Record struct {
	ID int64
	Event
	CreatedAt time.Time
}

// AppointmentEvent builds the envelope for a booked or cancelled appointment.
func AppointmentEvent(eventType string, appt model.Appointment, at time.Time) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"service_id":     appt.ServiceID,
		"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
		"status":         appt.Status.String(),
		"occurred_at":    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: "appointment",
		AggregateID:   formatID(appt.ID),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
