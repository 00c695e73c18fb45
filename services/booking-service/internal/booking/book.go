package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// ParseTimestamp reads "YYYY-MM-DD HH:MM" as a wall-clock time in the service location.
func (s *Service) ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(raw), s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
	}
	return t, nil
}

// Book reserves the slot at raw for the user. The early occupancy check only saves a write;
// the store's unique index on active slots decides concurrent races, and the loser gets
// ErrSlotTaken.
func (s *Service) Book(ctx context.Context, userID, serviceID int64, raw string) (appt model.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Book",
		attribute.Int64("user.id", userID),
		attribute.Int64("service.id", serviceID),
		attribute.String("booking.slot", raw),
	)
	defer func() { endSpan(span, err) }()

	if _, err = s.store.GetService(ctx, serviceID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, ErrServiceNotFound
		}
		return model.Appointment{}, err
	}

	start, err := s.ParseTimestamp(raw)
	if err != nil {
		return model.Appointment{}, err
	}

	if !s.schedule.Current().IsBookable(start) {
		return model.Appointment{}, ErrOutsideWorkingHours
	}

	taken, err := s.store.HasActiveAppointmentAt(ctx, start)
	if err != nil {
		return model.Appointment{}, err
	}
	if taken {
		return model.Appointment{}, ErrSlotTaken
	}

	appt, err = s.store.CreateAppointment(ctx, model.Appointment{
		UserID:    userID,
		ServiceID: serviceID,
		StartTime: start,
	}, s.event(outbox.EventAppointmentBooked))
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		return model.Appointment{}, ErrSlotTaken
	case errors.Is(err, storage.ErrReference):
		return model.Appointment{}, ErrUserNotRegistered
	case err != nil:
		return model.Appointment{}, err
	}

	appt.StartTime = appt.StartTime.In(s.loc)
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"user_id", userID,
		"service_id", serviceID,
		"start_time", appt.StartTime.Format(TimestampLayout),
	)
	return appt, nil
}

// Cancel moves an active appointment to cancelled. It reports false when the appointment does
// not exist or is no longer active. Ownership is checked by the caller.
func (s *Service) Cancel(ctx context.Context, appointmentID int64) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", attribute.Int64("appointment.id", appointmentID))
	defer func() { endSpan(span, err) }()

	ok, err = s.store.CancelAppointment(ctx, appointmentID, s.event(outbox.EventAppointmentCancelled))
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("appointment cancelled", "appointment_id", appointmentID)
	}
	return ok, nil
}

func (s *Service) GetAppointment(ctx context.Context, appointmentID int64) (appt model.Appointment, found bool, err error) {
	ctx, span := s.startSpan(ctx, "GetAppointment", attribute.Int64("appointment.id", appointmentID))
	defer func() { endSpan(span, err) }()

	appt, err = s.store.GetAppointment(ctx, appointmentID)
	switch {
	case err == nil:
		appt.StartTime = appt.StartTime.In(s.loc)
		return appt, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, false, nil
	default:
		return model.Appointment{}, false, err
	}
}

// FreeSlots lists the slots on date that are inside working hours, not booked and still ahead.
func (s *Service) FreeSlots(ctx context.Context, date string) (free []time.Time, err error) {
	ctx, span := s.startSpan(ctx, "FreeSlots", attribute.String("booking.date", date))
	defer func() { endSpan(span, err) }()

	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	candidates := s.schedule.Current().Slots(day, s.step)
	if len(candidates) == 0 {
		return nil, nil
	}
	booked, err := s.store.ActiveStartTimesBetween(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	taken := make(map[time.Time]struct{}, len(booked))
	for _, b := range booked {
		taken[storage.SlotKey(b)] = struct{}{}
	}

	now := s.now()
	for _, c := range candidates {
		if !c.After(now) {
			continue
		}
		if _, ok := taken[storage.SlotKey(c)]; ok {
			continue
		}
		free = append(free, c)
	}
	return free, nil
}

func (s *Service) event(eventType string) func(model.Appointment) (outbox.Event, error) {
	return func(appt model.Appointment) (outbox.Event, error) {
		return outbox.AppointmentEvent(eventType, appt, s.now())
	}
}
