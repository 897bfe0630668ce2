package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrConcurrentModification is returned when an optimistic version check fails.
var ErrConcurrentModification = fmt.Errorf("%w: concurrent modification", domain.ErrConflict)

// Timestamps and trip dates are stored as fixed-width RFC3339 text: the
// calendar date is always the first ten characters and values in one zone
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	*sql.DB
	path      string
	logger    *zerolog.Logger
	mu        sync.RWMutex
	carsCache map[string]*models.Car
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Transactions take the write lock up front so ledger read-modify-write
	// cycles on one booking cannot interleave.
	dsn := path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{
		DB:        sqlDB,
		path:      path,
		logger:    logger,
		carsCache: make(map[string]*models.Car),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT,
            phone TEXT,
            role TEXT NOT NULL DEFAULT 'renter',
            points_balance TEXT NOT NULL DEFAULT '0',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cars (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            model TEXT,
            plate_number TEXT,
            price_per_day TEXT NOT NULL DEFAULT '0',
            sort_order INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            car_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            guarantor_id TEXT,
            start_location TEXT,
            start_latitude REAL,
            start_longitude REAL,
            trip_start_date TEXT NOT NULL,
            trip_start_time TEXT,
            end_location TEXT,
            end_latitude REAL,
            end_longitude REAL,
            trip_end_date TEXT NOT NULL,
            trip_end_time TEXT,
            base_price TEXT NOT NULL DEFAULT '0',
            discount TEXT NOT NULL DEFAULT '0',
            final_price TEXT NOT NULL DEFAULT '0',
            status TEXT NOT NULL DEFAULT 'pending',
            cancellation_reason TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS guarantor_requests (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES bookings(id),
            user_id TEXT NOT NULL,
            guarantor_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            rejection_reason TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            responded_at TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS guarantor_points (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES bookings(id),
            guarantor_id TEXT NOT NULL,
            request_id TEXT NOT NULL,
            booking_amount TEXT NOT NULL,
            total_pool_amount TEXT NOT NULL,
            total_guarantors INTEGER NOT NULL CHECK (total_guarantors BETWEEN 1 AND 5),
            points_allocated TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            reversal_reason TEXT,
            reversed_at TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS ledger_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            guarantor_id TEXT,
            request_id TEXT,
            reason TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at TEXT NOT NULL,
            processed_at TEXT,
            next_retry_at TEXT
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_car_id ON bookings(car_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_dates ON bookings(trip_start_date, trip_end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_guarantor_requests_booking ON guarantor_requests(booking_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_guarantor_requests_guarantor ON guarantor_requests(guarantor_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_guarantor_requests_pending
            ON guarantor_requests(booking_id, guarantor_id) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_guarantor_points_guarantor ON guarantor_points(guarantor_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_guarantor_points_active
            ON guarantor_points(booking_id, guarantor_id) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_tasks_status ON ledger_tasks(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Path() string {
	return db.path
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConflict, err)
	}
	return domain.StoreFailure(op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
