package booking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// FutureAppointments returns the user's active appointments strictly after now, soonest first.
func (s *Service) FutureAppointments(ctx context.Context, userID int64, now time.Time) (out []model.AppointmentWithService, err error) {
	ctx, span := s.startSpan(ctx, "FutureAppointments", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	rows, err := s.store.ListFutureAppointments(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return s.joined(rows), nil
}

// PastAppointments returns the user's cancelled and completed appointments, latest first.
func (s *Service) PastAppointments(ctx context.Context, userID int64) (out []model.AppointmentWithService, err error) {
	ctx, span := s.startSpan(ctx, "PastAppointments", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	rows, err := s.store.ListPastAppointments(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.joined(rows), nil
}

// Rows whose service no longer exists are dropped and logged; the rest of the list is still served.
func (s *Service) joined(rows []storage.JoinedAppointment) []model.AppointmentWithService {
	out := make([]model.AppointmentWithService, 0, len(rows))
	for _, r := range rows {
		if r.Service == nil {
			s.logger.Warn("appointment references missing service",
				"appointment_id", r.Appointment.ID,
				"service_id", r.Appointment.ServiceID,
			)
			continue
		}
		appt := r.Appointment
		appt.StartTime = appt.StartTime.In(s.loc)
		out = append(out, model.AppointmentWithService{Appointment: appt, Service: *r.Service})
	}
	return out
}
