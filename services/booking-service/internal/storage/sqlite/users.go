package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// CreateUser inserts u. An existing id yields storage.ErrDuplicate and leaves the row untouched.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	return s.retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, phone_number, full_name, created_at)
			VALUES (?, ?, ?, ?)
		`, u.ID, u.PhoneNumber, u.FullName, formatTime(s.now()))
		if classifyConstraint(err) == uniqueConstraint {
			return storage.ErrDuplicate
		}
		return err
	})
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var u model.User
	err := s.retry(ctx, func(ctx context.Context) error {
		var createdAt string
		err := s.db.QueryRowContext(ctx, `
			SELECT id, phone_number, full_name, created_at
			FROM users
			WHERE id = ?
		`, id).Scan(&u.ID, &u.PhoneNumber, &u.FullName, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		u.CreatedAt, err = parseTime(createdAt)
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
		return s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, id).Scan(&exists)
	})
	return exists, err
}
