// Package booking is the booking core exposed to the chat transport: registration, the
// service catalog, slot booking and cancellation, and the appointment history queries.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/sto-booking/stobot/libs/otel"
	"github.com/sto-booking/stobot/libs/runtime"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/schedule"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
)

// Store is the Record Store the core runs against. Both storage/sqlite and storage/postgres
// satisfy it.
type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id int64) (model.User, error)
	UserExists(ctx context.Context, id int64) (bool, error)

	ListServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id int64) (model.Service, error)

	HasActiveAppointmentAt(ctx context.Context, start time.Time) (bool, error)
	CreateAppointment(ctx context.Context, appt model.Appointment, evt func(model.Appointment) (outbox.Event, error)) (model.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id int64, evt func(model.Appointment) (outbox.Event, error)) (bool, error)
	ActiveStartTimesBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)

	ListFutureAppointments(ctx context.Context, userID int64, now time.Time) ([]storage.JoinedAppointment, error)
	ListPastAppointments(ctx context.Context, userID int64) ([]storage.JoinedAppointment, error)
}

const (
	TimestampLayout = "2006-01-02 15:04"
	DateLayout      = "2006-01-02"

	defaultSlotStep = 30 * time.Minute
)

type Service struct {
	store    Store
	schedule schedule.Source
	logger   *slog.Logger
	loc      *time.Location
	step     time.Duration
	now      func() time.Time
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLocation sets the zone booking timestamps are written in and weekdays are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithSlotStep sets the spacing of the slots offered by FreeSlots.
func WithSlotStep(step time.Duration) Option {
	return func(s *Service) {
		if step >= time.Minute {
			s.step = step
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store Store, sched schedule.Source, opts ...Option) *Service {
	s := &Service{
		store:    store,
		schedule: sched,
		logger:   runtime.DiscardLogger(),
		loc:      time.UTC,
		step:     defaultSlotStep,
		now:      time.Now,
		tracer:   otelx.Tracer("booking-service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Schedule returns the weekly schedule currently in force.
func (s *Service) Schedule() schedule.Week {
	return s.schedule.Current()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !IsValidation(err) && !IsConflict(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Register creates the user. An already registered id is reported as false, not as an error,
// and the existing row is left as it was.
func (s *Service) Register(ctx context.Context, userID int64, phone, fullName string) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "Register", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	phone, fullName = strings.TrimSpace(phone), strings.TrimSpace(fullName)
	if phone == "" || fullName == "" {
		return false, ErrInvalidContact
	}

	err = s.store.CreateUser(ctx, model.User{ID: userID, PhoneNumber: phone, FullName: fullName})
	switch {
	case err == nil:
		s.logger.Info("user registered", "user_id", userID)
		return true, nil
	case errors.Is(err, storage.ErrDuplicate):
		return false, nil
	default:
		return false, fmt.Errorf("register user %d: %w", userID, err)
	}
}

func (s *Service) IsRegistered(ctx context.Context, userID int64) (ok bool, err error) {
	ctx, span := s.startSpan(ctx, "IsRegistered", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	ok, err = s.store.UserExists(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", userID, err)
	}
	return ok, nil
}

// GetUser reports found=false when the user is absent or its row cannot be read. Only an
// unreachable store is returned as an error.
func (s *Service) GetUser(ctx context.Context, userID int64) (u model.User, found bool, err error) {
	ctx, span := s.startSpan(ctx, "GetUser", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	u, err = s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		return u, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return model.User{}, false, nil
	case errors.Is(err, ErrStorageUnavailable):
		return model.User{}, false, err
	default:
		s.logger.Warn("unreadable user row", "user_id", userID, "err", err)
		return model.User{}, false, nil
	}
}

func (s *Service) ListServices(ctx context.Context) (list []model.Service, err error) {
	ctx, span := s.startSpan(ctx, "ListServices")
	defer func() { endSpan(span, err) }()

	list, err = s.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) GetService(ctx context.Context, serviceID int64) (svc model.Service, found bool, err error) {
	ctx, span := s.startSpan(ctx, "GetService", attribute.Int64("service.id", serviceID))
	defer func() { endSpan(span, err) }()

	svc, err = s.store.GetService(ctx, serviceID)
	switch {
	case err == nil:
		return svc, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return model.Service{}, false, nil
	default:
		return model.Service{}, false, err
	}
}
