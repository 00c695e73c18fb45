package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sto-booking/stobot/libs/config"
	"github.com/sto-booking/stobot/libs/db"
	"github.com/sto-booking/stobot/libs/httpx"
	"github.com/sto-booking/stobot/libs/kafkax"
	otelx "github.com/sto-booking/stobot/libs/otel"
	"github.com/sto-booking/stobot/libs/runtime"
	"github.com/sto-booking/stobot/services/booking-service/internal/booking"
	"github.com/sto-booking/stobot/services/booking-service/internal/conversation"
	"github.com/sto-booking/stobot/services/booking-service/internal/handlers"
	"github.com/sto-booking/stobot/services/booking-service/internal/outbox"
	"github.com/sto-booking/stobot/services/booking-service/internal/schedule"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/postgres"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/sqlite"
)

// recordStore is what main needs from either store driver.
type recordStore interface {
	booking.Store
	outbox.Source
	Ping(ctx context.Context) error
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := config.Location("BOOKING_TIMEZONE", "Europe/Kyiv")
	if err != nil {
		logger.Error("invalid timezone", "err", err)
		os.Exit(1)
	}
	stepMinutes, err := config.Int("SLOT_STEP_MINUTES", 30)
	if err != nil {
		logger.Error("invalid slot step", "err", err)
		os.Exit(1)
	}
	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		logger.Error("invalid rate limit", "err", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	sched, err := openSchedule(ctx, logger)
	if err != nil {
		logger.Error("schedule load failed", "err", err)
		os.Exit(1)
	}

	svc := booking.New(store, sched,
		booking.WithLogger(logger),
		booking.WithLocation(loc),
		booking.WithSlotStep(time.Duration(stepMinutes)*time.Minute),
	)

	sessions := conversation.NewSessions(conversation.DefaultSessionTTL)
	go sessions.RunSweeper(ctx, time.Minute, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(store, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(store)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var rateLimit httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
		rateLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, service).Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		rateLimit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewBookingHandler(svc, sessions, logger).Mount(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		rateLimit,
		httpx.WithBearerHS256(config.String("TRANSPORT_SECRET", ""), "/api/"),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func openStore(ctx context.Context, logger *slog.Logger) (recordStore, func(), error) {
	switch driver := config.String("STORE_DRIVER", "sqlite"); driver {
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.PoolOptions{})
		if err != nil {
			return nil, nil, err
		}
		store := postgres.NewStore(pool)
		if config.Bool("DB_AUTO_MIGRATE", true) {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		logger.Info("using postgres store")
		return store, pool.Close, nil
	case "sqlite":
		store, err := sqlite.Open(config.String("SQLITE_DIR", "data"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "path", store.Path())
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("STORE_DRIVER must be sqlite or postgres (got %q)", driver)
	}
}

// openSchedule loads SCHEDULE_FILE and keeps it hot-reloaded; without a file the built-in
// week applies.
func openSchedule(ctx context.Context, logger *slog.Logger) (schedule.Source, error) {
	path := config.String("SCHEDULE_FILE", "")
	if path == "" {
		logger.Warn("SCHEDULE_FILE not set; using default working hours")
		return schedule.Static(schedule.DefaultWeek()), nil
	}
	src, err := schedule.NewFileSource(path, logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := src.Watch(ctx); err != nil {
			logger.Error("schedule watch stopped", "err", err)
		}
	}()
	return src, nil
}
