package booking_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sto-booking/stobot/services/booking-service/internal/booking"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/schedule"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/sqlite"
)

// mondayNineToSix is open Monday 09:00-18:00 only.
func mondayNineToSix() schedule.Week {
	var w schedule.Week
	w[0] = &schedule.Day{Open: schedule.Interval{Start: 9 * 60, End: 18 * 60}}
	return w
}

func newService(t *testing.T, week schedule.Week, opts ...booking.Option) (*booking.Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return booking.New(store, schedule.Static(week), opts...), store
}

func seedService(t *testing.T, store *sqlite.Store) int64 {
	t.Helper()
	id, err := store.CreateService(context.Background(), model.Service{
		Name:            "Заміна моторної оливи",
		Price:           "800",
		Currency:        "UAH",
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	return id
}

func TestEndToEnd_RegisterBookConflict(t *testing.T) {
	svc, store := newService(t, mondayNineToSix())
	ctx := context.Background()
	serviceID := seedService(t, store)
	require.Equal(t, int64(1), serviceID)

	ok, err := svc.Register(ctx, 42, "+380000000", "Іван Петренко")
	require.NoError(t, err)
	assert.True(t, ok)

	appt, err := svc.Book(ctx, 42, 1, "2026-03-02 10:00")
	require.NoError(t, err)
	assert.NotZero(t, appt.ID)
	assert.Equal(t, model.StatusActive, appt.Status)
	assert.Equal(t, "2026-03-02 10:00", appt.StartTime.Format(booking.TimestampLayout))

	_, err = svc.Book(ctx, 99, 1, "2026-03-02 10:00")
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
	assert.True(t, booking.IsConflict(err))
	assert.False(t, booking.IsValidation(err))
}

func TestRegister_IsIdempotent(t *testing.T) {
	svc, _ := newService(t, mondayNineToSix())
	ctx := context.Background()

	ok, err := svc.Register(ctx, 42, "+380000000", "Іван Петренко")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Register(ctx, 42, "+380999999", "Петро Іваненко")
	require.NoError(t, err)
	assert.False(t, ok)

	u, found, err := svc.GetUser(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "+380000000", u.PhoneNumber)
	assert.Equal(t, "Іван Петренко", u.FullName)

	registered, err := svc.IsRegistered(ctx, 42)
	require.NoError(t, err)
	assert.True(t, registered)

	registered, err = svc.IsRegistered(ctx, 43)
	require.NoError(t, err)
	assert.False(t, registered)

	_, found, err = svc.GetUser(ctx, 43)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegister_RejectsBlankContact(t *testing.T) {
	svc, _ := newService(t, mondayNineToSix())

	ok, err := svc.Register(context.Background(), 1, "  ", "Name")
	assert.False(t, ok)
	assert.ErrorIs(t, err, booking.ErrInvalidContact)
	assert.True(t, booking.IsValidation(err))
}

func TestBook_Validation(t *testing.T) {
	week := mondayNineToSix()
	week[0].Break = &schedule.Interval{Start: 13 * 60, End: 14 * 60}
	svc, store := newService(t, week)
	ctx := context.Background()
	serviceID := seedService(t, store)
	_, err := svc.Register(ctx, 1, "+380000000", "Тест")
	require.NoError(t, err)

	tests := []struct {
		name      string
		userID    int64
		serviceID int64
		raw       string
		want      error
	}{
		{"unknown service", 1, 999, "2026-03-02 10:00", booking.ErrServiceNotFound},
		{"bad format", 1, serviceID, "02.03.2026 10:00", booking.ErrInvalidFormat},
		{"seconds not accepted", 1, serviceID, "2026-03-02 10:00:00", booking.ErrInvalidFormat},
		{"day off", 1, serviceID, "2026-03-08 10:00", booking.ErrOutsideWorkingHours},
		{"before opening", 1, serviceID, "2026-03-02 08:59", booking.ErrOutsideWorkingHours},
		{"closing time", 1, serviceID, "2026-03-02 18:00", booking.ErrOutsideWorkingHours},
		{"break", 1, serviceID, "2026-03-02 13:30", booking.ErrOutsideWorkingHours},
		{"unregistered user", 7, serviceID, "2026-03-02 12:00", booking.ErrUserNotRegistered},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tc.userID, tc.serviceID, tc.raw)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, booking.IsValidation(err))
		})
	}

	_, err = svc.Book(ctx, 1, serviceID, "2026-03-02 14:00")
	assert.NoError(t, err)
}

func TestBook_ConcurrentSameSlotHasOneWinner(t *testing.T) {
	svc, store := newService(t, mondayNineToSix())
	ctx := context.Background()
	serviceID := seedService(t, store)
	for _, id := range []int64{1, 2} {
		_, err := svc.Register(ctx, id, "+380000000", "Тест")
		require.NoError(t, err)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Book(ctx, userID, serviceID, "2026-03-02 15:00")
		}(i, userID)
	}
	close(start)
	wg.Wait()

	var wins, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, booking.ErrSlotTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, taken)
}

func TestCancel_GuardAndRebook(t *testing.T) {
	svc, store := newService(t, mondayNineToSix())
	ctx := context.Background()
	serviceID := seedService(t, store)
	for _, id := range []int64{1, 2} {
		_, err := svc.Register(ctx, id, "+380000000", "Тест")
		require.NoError(t, err)
	}

	appt, err := svc.Book(ctx, 1, serviceID, "2026-03-02 11:00")
	require.NoError(t, err)

	ok, err := svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, found, err := svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusCancelled, got.Status)

	ok, err = svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _, err = svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = svc.Book(ctx, 2, serviceID, "2026-03-02 11:00")
	assert.NoError(t, err)

	_, found, err = svc.GetAppointment(ctx, 12345)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFutureAndPastAppointments(t *testing.T) {
	week := schedule.DefaultWeek()
	svc, store := newService(t, week)
	ctx := context.Background()
	serviceID := seedService(t, store)
	_, err := svc.Register(ctx, 1, "+380000000", "Тест")
	require.NoError(t, err)

	// Saturday, Monday and Tuesday in January 2026.
	for _, raw := range []string{"2026-01-10 10:00", "2026-01-05 10:00", "2026-01-20 10:00"} {
		_, err := svc.Book(ctx, 1, serviceID, raw)
		require.NoError(t, err)
	}
	cancelled, err := svc.Book(ctx, 1, serviceID, "2026-01-06 10:00")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future, err := svc.FutureAppointments(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, future, 3)
	var days []string
	for _, f := range future {
		days = append(days, f.Appointment.StartTime.Format("01-02"))
		assert.Equal(t, "Заміна моторної оливи", f.Service.Name)
	}
	assert.Equal(t, []string{"01-05", "01-10", "01-20"}, days)

	past, err := svc.PastAppointments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, cancelled.ID, past[0].Appointment.ID)
	assert.Equal(t, model.StatusCancelled, past[0].Appointment.Status)
}

func TestFreeSlots(t *testing.T) {
	var week schedule.Week
	week[0] = &schedule.Day{
		Open:  schedule.Interval{Start: 9 * 60, End: 12 * 60},
		Break: &schedule.Interval{Start: 10*60 + 30, End: 11 * 60},
	}
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	now := time.Date(2026, 3, 2, 9, 45, 0, 0, kyiv)

	svc, store := newService(t, week,
		booking.WithLocation(kyiv),
		booking.WithSlotStep(30*time.Minute),
		booking.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	serviceID := seedService(t, store)
	_, err = svc.Register(ctx, 1, "+380000000", "Тест")
	require.NoError(t, err)
	_, err = svc.Book(ctx, 1, serviceID, "2026-03-02 11:00")
	require.NoError(t, err)

	free, err := svc.FreeSlots(ctx, "2026-03-02")
	require.NoError(t, err)
	var got []string
	for _, f := range free {
		assert.Equal(t, kyiv, f.Location())
		got = append(got, f.Format("15:04"))
	}
	assert.Equal(t, []string{"10:00", "11:30"}, got)

	free, err = svc.FreeSlots(ctx, "2026-03-03")
	require.NoError(t, err)
	assert.Empty(t, free)

	_, err = svc.FreeSlots(ctx, "March 2")
	assert.ErrorIs(t, err, booking.ErrInvalidDate)
}

func TestBook_UsesConfiguredLocation(t *testing.T) {
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	svc, store := newService(t, mondayNineToSix(), booking.WithLocation(kyiv))
	ctx := context.Background()
	serviceID := seedService(t, store)
	_, err = svc.Register(ctx, 1, "+380000000", "Тест")
	require.NoError(t, err)

	// 09:00 in Kyiv is 07:00 UTC; the schedule is read on the local wall clock.
	appt, err := svc.Book(ctx, 1, serviceID, "2026-03-02 09:00")
	require.NoError(t, err)
	assert.Equal(t, 7, appt.StartTime.UTC().Hour())
	assert.Equal(t, "2026-03-02 09:00", appt.StartTime.Format(booking.TimestampLayout))
}

// stubStore overrides individual methods; anything else panics on the nil embedded Store.
type stubStore struct {
	booking.Store
	getService func(context.Context, int64) (model.Service, error)
	getUser    func(context.Context, int64) (model.User, error)
	past       []storage.JoinedAppointment
}

func (s *stubStore) GetService(ctx context.Context, id int64) (model.Service, error) {
	return s.getService(ctx, id)
}

func (s *stubStore) GetUser(ctx context.Context, id int64) (model.User, error) {
	return s.getUser(ctx, id)
}

func (s *stubStore) ListPastAppointments(context.Context, int64) ([]storage.JoinedAppointment, error) {
	return s.past, nil
}

func TestPastAppointments_OmitsDanglingService(t *testing.T) {
	stub := &stubStore{past: []storage.JoinedAppointment{
		{Appointment: model.Appointment{ID: 1, ServiceID: 5, Status: model.StatusCancelled}},
		{Appointment: model.Appointment{ID: 2, ServiceID: 1, Status: model.StatusCompleted}, Service: &model.Service{ID: 1, Name: "Мийка"}},
	}}
	svc := booking.New(stub, schedule.Static(mondayNineToSix()))

	past, err := svc.PastAppointments(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, int64(2), past[0].Appointment.ID)
	assert.Equal(t, "Мийка", past[0].Service.Name)
}

func TestStorageUnavailableIsSurfaced(t *testing.T) {
	down := fmt.Errorf("%w: %w", storage.ErrUnavailable, driver.ErrBadConn)
	stub := &stubStore{
		getService: func(context.Context, int64) (model.Service, error) { return model.Service{}, down },
		getUser:    func(context.Context, int64) (model.User, error) { return model.User{}, down },
	}
	svc := booking.New(stub, schedule.Static(mondayNineToSix()))
	ctx := context.Background()

	_, err := svc.Book(ctx, 1, 1, "2026-03-02 10:00")
	assert.ErrorIs(t, err, booking.ErrStorageUnavailable)
	assert.False(t, booking.IsValidation(err))
	assert.False(t, booking.IsConflict(err))

	_, found, err := svc.GetUser(ctx, 1)
	assert.ErrorIs(t, err, booking.ErrStorageUnavailable)
	assert.False(t, found)
}

func TestGetUser_UnreadableRowIsAbsent(t *testing.T) {
	stub := &stubStore{getUser: func(context.Context, int64) (model.User, error) {
		return model.User{}, errors.New(`malformed stored time "yesterday"`)
	}}
	svc := booking.New(stub, schedule.Static(mondayNineToSix()))

	_, found, err := svc.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, found)
}
