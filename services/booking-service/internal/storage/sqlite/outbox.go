package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
)

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, appt model.Appointment, build func(model.Appointment) (outbox.Event, error)) error {
	if build == nil {
		return nil
	}
	evt, err := build(appt)
	if err != nil {
		return err
	}
	traceparent, tracestate := traceContext(ctx, evt.Traceparent, evt.Tracestate)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate, formatTime(s.now()))
	return err
}

// PublishBatch hands up to limit unpublished events to fn and marks them published if fn
// succeeds. No transaction is open while fn runs: the database has a single writer, and a
// slow broker must not hold bookings behind it. A crash between fn and the update sends
// the batch again, which consumers absorb through the event_id header.
func (s *Store) PublishBatch(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	var records []outbox.Record
	if err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		records, err = s.unpublished(ctx, limit)
		return err
	}); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := fn(ctx, records); err != nil {
		return 0, err
	}

	placeholders := make([]string, len(records))
	args := make([]any, 0, len(records)+1)
	args = append(args, formatTime(s.now()))
	for i, r := range records {
		placeholders[i] = "?"
		args = append(args, r.ID)
	}
	query := `UPDATE outbox_events SET published_at = ? WHERE published_at IS NULL AND id IN (` + strings.Join(placeholders, ",") + `)`
	if err := s.retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *Store) unpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var r outbox.Record
		var created string
		if err := rows.Scan(&r.ID, &r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload, &r.Traceparent, &r.Tracestate, &created); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
