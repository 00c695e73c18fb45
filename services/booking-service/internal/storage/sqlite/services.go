package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

const serviceColumns = `id, name, image_url, price, currency, duration_minutes, description`

func (s *Store) CreateService(ctx context.Context, svc model.Service) (int64, error) {
	var id int64
	err := s.retry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO services (name, image_url, price, currency, duration_minutes, description)
			VALUES (?, ?, ?, ?, ?, ?)
		`, svc.Name, svc.ImageURL, svc.Price, svc.Currency, svc.DurationMinutes, svc.Description)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create service: %w", err)
	}
	return id, nil
}

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	var services []model.Service
	err := s.retry(ctx, func(ctx context.Context) error {
		services = services[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var svc model.Service
			if err := scanService(rows, &svc); err != nil {
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
		err := scanService(s.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id), &svc)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Service{}, fmt.Errorf("get service %d: %w", id, err)
	}
	return svc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner, svc *model.Service) error {
	return row.Scan(&svc.ID, &svc.Name, &svc.ImageURL, &svc.Price, &svc.Currency, &svc.DurationMinutes, &svc.Description)
}
