package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sto-booking/stobot/libs/db"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// setupStore needs a disposable database in TEST_DATABASE_URL; every table is truncated.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dbURL, db.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is idempotent")
	_, err = pool.Exec(ctx, `TRUNCATE outbox_events, appointments, services, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store, userIDs ...int64) int64 {
	t.Helper()
	ctx := context.Background()
	for _, id := range userIDs {
		require.NoError(t, s.CreateUser(ctx, model.User{ID: id, PhoneNumber: "+380000000", FullName: "Тест"}))
	}
	svcID, err := s.CreateService(ctx, model.Service{Name: "Заміна масла", Price: "800.00", Currency: "UAH", DurationMinutes: 30})
	require.NoError(t, err)
	return svcID
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func bookedEvent(appt model.Appointment) (outbox.Event, error) {
	return outbox.AppointmentEvent(outbox.EventAppointmentBooked, appt, appt.CreatedAt)
}

func TestPgCode(t *testing.T) {
	code, constraint := pgCode(&pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint})
	assert.Equal(t, "23505", code)
	assert.Equal(t, activeSlotConstraint, constraint)

	code, constraint = pgCode(errors.New("boom"))
	assert.Empty(t, code)
	assert.Empty(t, constraint)
}

func TestDeref(t *testing.T) {
	s := "x"
	assert.Equal(t, "x", deref(&s))
	assert.Equal(t, "", deref[string](nil))
}

func TestUsers_Duplicate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	seed(t, s, 42)

	err := s.CreateUser(ctx, model.User{ID: 42, PhoneNumber: "+380999999", FullName: "Other"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	u, err := s.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "+380000000", u.PhoneNumber)

	_, err = s.GetUser(ctx, 7)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := s.UserExists(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServices_PriceRoundTrips(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := seed(t, s)

	svc, err := s.GetService(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "800.00", svc.Price)

	list, err := s.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetService(ctx, id+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppointments_SlotCancelAndRebook(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	svc := seed(t, s, 1, 2)
	slot := at("2026-03-02 10:00")

	appt, err := s.CreateAppointment(ctx, model.Appointment{UserID: 1, ServiceID: svc, StartTime: slot}, bookedEvent)
	require.NoError(t, err)

	_, err = s.CreateAppointment(ctx, model.Appointment{UserID: 2, ServiceID: svc, StartTime: slot}, bookedEvent)
	assert.ErrorIs(t, err, storage.ErrSlotTaken)

	_, err = s.CreateAppointment(ctx, model.Appointment{UserID: 404, ServiceID: svc, StartTime: at("2026-03-02 11:00")}, nil)
	assert.ErrorIs(t, err, storage.ErrReference)

	ok, err := s.CancelAppointment(ctx, appt.ID, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CancelAppointment(ctx, appt.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.CreateAppointment(ctx, model.Appointment{UserID: 2, ServiceID: svc, StartTime: slot}, nil)
	require.NoError(t, err)

	past, err := s.ListPastAppointments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, model.StatusCancelled, past[0].Appointment.Status)
	require.NotNil(t, past[0].Service)

	future, err := s.ListFutureAppointments(ctx, 2, at("2026-03-01 00:00"))
	require.NoError(t, err)
	require.Len(t, future, 1)
	assert.True(t, slot.Equal(future[0].Appointment.StartTime))
}

func TestAppointments_ConcurrentBookingHasOneWinner(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	const callers = 8
	users := make([]int64, callers)
	for i := range users {
		users[i] = int64(i + 1)
	}
	svc := seed(t, s, users...)
	slot := at("2026-03-03 15:00")

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i, id := range users {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = s.CreateAppointment(ctx, model.Appointment{UserID: id, ServiceID: svc, StartTime: slot}, bookedEvent)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrSlotTaken)
	}
	assert.Equal(t, 1, wins)
}

func TestPublishBatch(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	svc := seed(t, s, 1)
	_, err := s.CreateAppointment(ctx, model.Appointment{UserID: 1, ServiceID: svc, StartTime: at("2026-03-02 09:00")}, bookedEvent)
	require.NoError(t, err)

	_, err = s.PublishBatch(ctx, 10, func(context.Context, []outbox.Record) error {
		return errors.New("broker down")
	})
	require.Error(t, err)

	n, err := s.PublishBatch(ctx, 10, func(_ context.Context, recs []outbox.Record) error {
		assert.Equal(t, outbox.EventAppointmentBooked, recs[0].EventType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.PublishBatch(ctx, 10, func(context.Context, []outbox.Record) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}
