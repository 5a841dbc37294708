package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// tables referencing drivers, in foreign-key dependency order. Child rows
// must go before the drivers they reference.
var driverDependentTables = []string{
	"driver_ratings",
	"driver_locations",
	"driver_shifts",
	"driver_documents",
}

// OpenDatabase connects to the service's Postgres instance. The database
// is used only for readiness probing and out-of-band cleanup; behavioral
// assertions always go through the service's own interfaces. maxConns
// bounds the pool; values below one fall back to a small default.
func OpenDatabase(dsn string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns < 1 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(time.Minute)
	return db, nil
}

// DatabaseCleaner removes leftover test rows directly from the database,
// for resources the service's DELETE endpoints could not remove.
type DatabaseCleaner struct {
	db     *sqlx.DB
	logger logging.Logger
}

func NewDatabaseCleaner(db *sqlx.DB, logger logging.Logger) *DatabaseCleaner {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &DatabaseCleaner{db: db, logger: logger}
}

// PurgeDrivers deletes the given drivers and their dependent rows. Used as
// a last-resort fallback by teardown when the API deletion path failed.
func (c *DatabaseCleaner) PurgeDrivers(ctx context.Context, driverIDs []string) error {
	if len(driverIDs) == 0 {
		return nil
	}
	for _, table := range driverDependentTables {
		q, qargs, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE driver_id IN (?)", table), driverIDs)
		if err != nil {
			return err
		}
		if _, err := c.db.ExecContext(ctx, c.db.Rebind(q), qargs...); err != nil {
			return fmt.Errorf("purging %s: %w", table, err)
		}
	}
	q, qargs, err := sqlx.In("DELETE FROM drivers WHERE id IN (?)", driverIDs)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, c.db.Rebind(q), qargs...); err != nil {
		return fmt.Errorf("purging drivers: %w", err)
	}
	c.logger.Printf("purged %d driver(s) from the database", len(driverIDs))
	return nil
}

// PurgeStaleTestData removes rows left behind by earlier aborted runs,
// identified by the fixture factory's email domain.
func (c *DatabaseCleaner) PurgeStaleTestData(ctx context.Context, emailDomain string) error {
	pattern := "%@" + emailDomain
	for _, table := range driverDependentTables {
		q := fmt.Sprintf(
			"DELETE FROM %s WHERE driver_id IN (SELECT id FROM drivers WHERE email LIKE $1)", table)
		if _, err := c.db.ExecContext(ctx, q, pattern); err != nil {
			return fmt.Errorf("purging stale rows from %s: %w", table, err)
		}
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM drivers WHERE email LIKE $1", pattern); err != nil {
		return fmt.Errorf("purging stale drivers: %w", err)
	}
	return nil
}
