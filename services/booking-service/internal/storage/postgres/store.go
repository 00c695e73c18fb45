// Package postgres is the Record Store for deployments that share one database between
// several booking-service replicas.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sto-booking/stobot/libs/db"
	otelx "github.com/sto-booking/stobot/libs/otel"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/postgres/migrations"
)

const (
	activeSlotConstraint = "appointments_active_slot_uq"
	usersPrimaryKey      = "users_pkey"
)

type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema files that are newer than the recorded version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.inTx(ctx, func(tx pgx.Tx) error {
			// No arguments: pgx sends this over the simple protocol, so multiple statements are fine.
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		}); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) retry(ctx context.Context, fn func(context.Context) error) error {
	return db.Retry(ctx, db.IsTransient, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// CreateUser inserts u. An existing id yields storage.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO users (id, phone_number, full_name)
			VALUES ($1, $2, $3)
		`, u.ID, u.PhoneNumber, u.FullName)
		if code, constraint := pgCode(err); code == "23505" && (constraint == usersPrimaryKey || constraint == "") {
			return storage.ErrDuplicate
		}
		return err
	})
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := s.retry(ctx, func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, `
			SELECT id, phone_number, full_name, created_at
			FROM users
			WHERE id = $1
		`, id).Scan(&u.ID, &u.PhoneNumber, &u.FullName, &u.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	})
	return exists, err
}

func (s *Store) CreateService(ctx context.Context, svc model.Service) (int64, error) {
	var id int64
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `
			INSERT INTO services (name, image_url, price, currency, duration_minutes, description)
			VALUES ($1, $2, ($3::text)::numeric, $4, $5, $6)
			RETURNING id
		`, svc.Name, svc.ImageURL, svc.Price, svc.Currency, svc.DurationMinutes, svc.Description).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("create service: %w", err)
	}
	return id, nil
}

const serviceColumns = `id, name, image_url, price::text, currency, duration_minutes, description`

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	var services []model.Service
	err := s.retry(ctx, func(ctx context.Context) error {
		services = services[:0]
		rows, err := s.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var svc model.Service
			if err := rows.Scan(&svc.ID, &svc.Name, &svc.ImageURL, &svc.Price, &svc.Currency, &svc.DurationMinutes, &svc.Description); err != nil {
				return err
			}
			services = append(services, svc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (model.Service, error) {
	var svc model.Service
	err := s.retry(ctx, func(ctx context.Context) error {
		err := s.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id).
			Scan(&svc.ID, &svc.Name, &svc.ImageURL, &svc.Price, &svc.Currency, &svc.DurationMinutes, &svc.Description)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Service{}, fmt.Errorf("get service %d: %w", id, err)
	}
	return svc, nil
}

func (s *Store) HasActiveAppointmentAt(ctx context.Context, start time.Time) (bool, error) {
	var exists bool
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE start_time = $1 AND status = 0)
		`, storage.SlotKey(start)).Scan(&exists)
	})
	return exists, err
}

// CreateAppointment inserts appt as active together with the event built by evt.
func (s *Store) CreateAppointment(ctx context.Context, appt model.Appointment, evt func(model.Appointment) (outbox.Event, error)) (model.Appointment, error) {
	appt.StartTime = storage.SlotKey(appt.StartTime)
	appt.Status = model.StatusActive

	var created model.Appointment
	err := s.retry(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			created = appt
			err := tx.QueryRow(ctx, `
				INSERT INTO appointments (user_id, service_id, start_time, status)
				VALUES ($1, $2, $3, 0)
				RETURNING id, created_at
			`, appt.UserID, appt.ServiceID, appt.StartTime).Scan(&created.ID, &created.CreatedAt)
			switch code, constraint := pgCode(err); {
			case code == "23505" && constraint == activeSlotConstraint:
				return storage.ErrSlotTaken
			case code == "23503":
				return storage.ErrReference
			}
			if err != nil {
				return err
			}
			return insertEvent(ctx, tx, created, evt)
		})
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return created, nil
}

const appointmentColumns = `id, user_id, service_id, start_time, status, created_at`

func scanAppointment(row pgx.Row, appt *model.Appointment) error {
	var status int16
	if err := row.Scan(&appt.ID, &appt.UserID, &appt.ServiceID, &appt.StartTime, &status, &appt.CreatedAt); err != nil {
		return err
	}
	appt.StartTime = appt.StartTime.UTC()
	appt.Status = model.Status(status)
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (model.Appointment, error) {
	var appt model.Appointment
	err := s.retry(ctx, func(ctx context.Context) error {
		err := scanAppointment(s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id), &appt)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return appt, nil
}

// CancelAppointment flips an active appointment to cancelled and reports whether it did.
func (s *Store) CancelAppointment(ctx context.Context, id int64, evt func(model.Appointment) (outbox.Event, error)) (bool, error) {
	var cancelled bool
	err := s.retry(ctx, func(ctx context.Context) error {
		cancelled = false
		return s.inTx(ctx, func(tx pgx.Tx) error {
			var appt model.Appointment
			err := scanAppointment(tx.QueryRow(ctx, `
				UPDATE appointments SET status = -1
				WHERE id = $1 AND status = 0
				RETURNING `+appointmentColumns, id), &appt)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, tx, appt, evt); err != nil {
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

func (s *Store) ActiveStartTimesBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var starts []time.Time
	err := s.retry(ctx, func(ctx context.Context) error {
		starts = starts[:0]
		rows, err := s.pool.Query(ctx, `
			SELECT start_time FROM appointments
			WHERE status = 0 AND start_time >= $1 AND start_time < $2
			ORDER BY start_time
		`, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t time.Time
			if err := rows.Scan(&t); err != nil {
				return err
			}
			starts = append(starts, t.UTC())
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	return starts, nil
}

func (s *Store) ListFutureAppointments(ctx context.Context, userID int64, now time.Time) ([]storage.JoinedAppointment, error) {
	return s.listJoined(ctx, `
		WHERE a.user_id = $1 AND a.status = 0 AND a.start_time > $2
		ORDER BY a.start_time ASC, a.id ASC
	`, userID, now)
}

func (s *Store) ListPastAppointments(ctx context.Context, userID int64) ([]storage.JoinedAppointment, error) {
	return s.listJoined(ctx, `
		WHERE a.user_id = $1 AND a.status <> 0
		ORDER BY a.start_time DESC, a.id DESC
	`, userID)
}

func (s *Store) listJoined(ctx context.Context, where string, args ...any) ([]storage.JoinedAppointment, error) {
	var out []storage.JoinedAppointment
	err := s.retry(ctx, func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.pool.Query(ctx, `
			SELECT a.id, a.user_id, a.service_id, a.start_time, a.status, a.created_at,
				s.id, s.name, s.image_url, s.price::text, s.currency, s.duration_minutes, s.description
			FROM appointments a
			LEFT JOIN services s ON s.id = a.service_id
		`+where, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ja storage.JoinedAppointment
			var status int16
			var svcID *int64
			var svcDuration *int32
			var svcName, svcImage, svcPrice, svcCurrency, svcDescription *string
			if err := rows.Scan(&ja.Appointment.ID, &ja.Appointment.UserID, &ja.Appointment.ServiceID,
				&ja.Appointment.StartTime, &status, &ja.Appointment.CreatedAt,
				&svcID, &svcName, &svcImage, &svcPrice, &svcCurrency, &svcDuration, &svcDescription); err != nil {
				return err
			}
			ja.Appointment.StartTime = ja.Appointment.StartTime.UTC()
			ja.Appointment.Status = model.Status(status)
			if svcID != nil {
				ja.Service = &model.Service{
					ID:              *svcID,
					Name:            deref(svcName),
					ImageURL:        deref(svcImage),
					Price:           deref(svcPrice),
					Currency:        strings.TrimSpace(deref(svcCurrency)),
					DurationMinutes: int(deref(svcDuration)),
					Description:     deref(svcDescription),
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

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func insertEvent(ctx context.Context, tx pgx.Tx, appt model.Appointment, build func(model.Appointment) (outbox.Event, error)) error {
	if build == nil {
		return nil
	}
	evt, err := build(appt)
	if err != nil {
		return err
	}
	traceparent, tracestate := evt.Traceparent, evt.Tracestate
	if traceparent == "" && tracestate == "" {
		traceparent, tracestate = otelx.TraceContextStrings(ctx)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// PublishBatch locks up to limit unpublished rows, hands them to fn and marks them
// published when fn succeeds. SKIP LOCKED lets several replicas publish side by side.
func (s *Store) PublishBatch(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	var published int
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
			FROM outbox_events
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		var records []outbox.Record
		var ids []int64
		for rows.Next() {
			var r outbox.Record
			if err := rows.Scan(&r.ID, &r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload, &r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			records = append(records, r)
			ids = append(ids, r.ID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(ctx, records); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox_events
			SET published_at = now()
			WHERE id = ANY($1)
		`, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	return published, err
}
