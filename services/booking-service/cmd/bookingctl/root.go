package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sto-booking/stobot/libs/config"
	"github.com/sto-booking/stobot/libs/db"
	"github.com/sto-booking/stobot/services/booking-service/internal/model"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/postgres"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/sqlite"
)

// Flag values. Empty means fall back to the environment the service itself reads.
var (
	driverFlag      string
	sqliteDirFlag   string
	databaseURLFlag string
)

var rootCmd = &cobra.Command{
	Use:   "bookingctl",
	Short: "Administer the booking store",
	Long: `bookingctl prepares the record store the booking service runs against.

Store selection follows the service: --driver or STORE_DRIVER picks sqlite (the default)
or postgres, --sqlite-dir or SQLITE_DIR locates booking.db, and --database-url or
DATABASE_URL is the postgres connection string.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "", "store driver: sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&sqliteDirFlag, "sqlite-dir", "", "directory holding booking.db")
	rootCmd.PersistentFlags().StringVar(&databaseURLFlag, "database-url", "", "postgres connection string")
}

// catalogStore is the part of either store driver the catalog commands use.
type catalogStore interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	CreateService(ctx context.Context, svc model.Service) (int64, error)
}

func orEnv(flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	return config.String(key, fallback)
}

// openStore opens the selected store with its schema migrated.
func openStore(ctx context.Context) (catalogStore, string, func(), error) {
	switch driver := orEnv(driverFlag, "STORE_DRIVER", "sqlite"); driver {
	case "sqlite":
		store, err := sqlite.Open(orEnv(sqliteDirFlag, "SQLITE_DIR", "data"))
		if err != nil {
			return nil, "", nil, err
		}
		return store, store.Path(), func() { _ = store.Close() }, nil
	case "postgres":
		dbURL := orEnv(databaseURLFlag, "DATABASE_URL", "")
		if dbURL == "" {
			return nil, "", nil, fmt.Errorf("postgres driver needs --database-url or DATABASE_URL")
		}
		pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: 2})
		if err != nil {
			return nil, "", nil, err
		}
		store := postgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, "", nil, fmt.Errorf("migrating postgres: %w", err)
		}
		return store, "postgres", pool.Close, nil
	default:
		return nil, "", nil, fmt.Errorf("driver must be sqlite or postgres (got %q)", driver)
	}
}
