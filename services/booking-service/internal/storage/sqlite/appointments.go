package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

func (s *Store) HasActiveAppointmentAt(ctx context.Context, start time.Time) (bool, error) {
	var exists bool
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE start_time = ? AND status = 0)
		`, formatTime(storage.SlotKey(start))).Scan(&exists)
	})
	return exists, err
}

// CreateAppointment inserts appt as active together with the event built by evt.
// A concurrent active booking of the same slot surfaces as storage.ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, appt model.Appointment, evt func(model.Appointment) (outbox.Event, error)) (model.Appointment, error) {
	appt.StartTime = storage.SlotKey(appt.StartTime)
	appt.Status = model.StatusActive

	var created model.Appointment
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			now := s.now().UTC()
			res, err := tx.ExecContext(ctx, `
				INSERT INTO appointments (user_id, service_id, start_time, status, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, appt.UserID, appt.ServiceID, formatTime(appt.StartTime), int(appt.Status), formatTime(now))
			switch classifyConstraint(err) {
			case uniqueConstraint:
				return storage.ErrSlotTaken
			case foreignKeyConstraint:
				return storage.ErrReference
			}
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			created = appt
			created.ID = id
			created.CreatedAt = now.Truncate(time.Second)
			return s.insertEvent(ctx, tx, created, evt)
		})
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return created, nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	var appt model.Appointment
	err := s.retry(ctx, func(ctx context.Context) error {
		err := scanAppointment(s.db.QueryRowContext(ctx, `
			SELECT id, user_id, service_id, start_time, status, created_at
			FROM appointments
			WHERE id = ?
		`, id), &appt)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return appt, nil
}

// CancelAppointment flips an active appointment to cancelled. It reports false, without
// error, when the appointment does not exist or is not active.
func (s *Store) CancelAppointment(ctx context.Context, id int64, evt func(model.Appointment) (outbox.Event, error)) (bool, error) {
	var cancelled bool
	err := s.retry(ctx, func(ctx context.Context) error {
		cancelled = false
		return s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				UPDATE appointments SET status = ? WHERE id = ? AND status = ?
			`, int(model.StatusCancelled), id, int(model.StatusActive))
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil || n == 0 {
				return err
			}

			var appt model.Appointment
			if err := scanAppointment(tx.QueryRowContext(ctx, `
				SELECT id, user_id, service_id, start_time, status, created_at
				FROM appointments
				WHERE id = ?
			`, id), &appt); err != nil {
				return err
			}
			if err := s.insertEvent(ctx, tx, appt, evt); err != nil {
				return err
			}
			cancelled = true
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("cancel appointment %d: %w", id, err)
	}
	return cancelled, nil
}

// ActiveStartTimesBetween lists occupied slots in [from, to).
func (s *Store) ActiveStartTimesBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var starts []time.Time
	err := s.retry(ctx, func(ctx context.Context) error {
		starts = starts[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT start_time FROM appointments
			WHERE status = 0 AND start_time >= ? AND start_time < ?
			ORDER BY start_time
		`, formatTime(from), formatTime(to))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			t, err := parseTime(raw)
			if err != nil {
				return err
			}
			starts = append(starts, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	return starts, nil
}

// ListFutureAppointments returns the user's active appointments after now, soonest first.
func (s *Store) ListFutureAppointments(ctx context.Context, userID int64, now time.Time) ([]storage.JoinedAppointment, error) {
	return s.listJoined(ctx, `
		WHERE a.user_id = ? AND a.status = 0 AND a.start_time > ?
		ORDER BY a.start_time ASC, a.id ASC
	`, userID, formatTime(now))
}

// ListPastAppointments returns the user's cancelled and completed appointments, latest first.
func (s *Store) ListPastAppointments(ctx context.Context, userID int64) ([]storage.JoinedAppointment, error) {
	return s.listJoined(ctx, `
		WHERE a.user_id = ? AND a.status <> 0
		ORDER BY a.start_time DESC, a.id DESC
	`, userID)
}

func (s *Store) listJoined(ctx context.Context, where string, args ...any) ([]storage.JoinedAppointment, error) {
	var out []storage.JoinedAppointment
	err := s.retry(ctx, func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, `
			SELECT a.id, a.user_id, a.service_id, a.start_time, a.status, a.created_at,
				s.id, s.name, s.image_url, s.price, s.currency, s.duration_minutes, s.description
			FROM appointments a
			LEFT JOIN services s ON s.id = a.service_id
		`+where, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ja storage.JoinedAppointment
			var start, created string
			var status int
			var svcID, svcDuration sql.NullInt64
			var svcName, svcImage, svcPrice, svcCurrency, svcDescription sql.NullString
			if err := rows.Scan(&ja.Appointment.ID, &ja.Appointment.UserID, &ja.Appointment.ServiceID, &start, &status, &created,
				&svcID, &svcName, &svcImage, &svcPrice, &svcCurrency, &svcDuration, &svcDescription); err != nil {
				return err
			}
			if err := fillTimes(&ja.Appointment, start, created); err != nil {
				return err
			}
			ja.Appointment.Status = model.Status(status)
			if svcID.Valid {
				ja.Service = &model.Service{
					ID:              svcID.Int64,
					Name:            svcName.String,
					ImageURL:        svcImage.String,
					Price:           svcPrice.String,
					Currency:        svcCurrency.String,
					DurationMinutes: int(svcDuration.Int64),
					Description:     svcDescription.String,
				}
			}
			out = append(out, ja)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

func scanAppointment(row rowScanner, appt *model.Appointment) error {
	var start, created string
	var status int
	if err := row.Scan(&appt.ID, &appt.UserID, &appt.ServiceID, &start, &status, &created); err != nil {
		return err
	}
	appt.Status = model.Status(status)
	return fillTimes(appt, start, created)
}

func fillTimes(appt *model.Appointment, start, created string) error {
	var err error
	if appt.StartTime, err = parseTime(start); err != nil {
		return err
	}
	appt.CreatedAt, err = parseTime(created)
	return err
}
