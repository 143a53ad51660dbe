package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/region23/pnplive/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStorage реализует интерфейс Storage для SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// New создает новое подключение к SQLite базе данных
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка подключения
	db.SetMaxOpenConns(1) // SQLite поддерживает только одно write-подключение
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // :memory: живет ровно столько, сколько соединение

	storage := &SQLiteStorage{db: db, now: time.Now}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return storage, nil
}

// migrate выполняет миграции базы данных
func (s *SQLiteStorage) migrate() error {
	// Включаем WAL mode для лучшей конкурентности
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Включаем foreign keys
	if _, err := s.db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Все моменты времени хранятся как unix-секунды в UTC
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_online INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS availability_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			booked INTEGER NOT NULL DEFAULT 0,
			booking_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (start_at < end_at),
			CHECK ((booked = 1 AND booking_id IS NOT NULL) OR (booked = 0 AND booking_id IS NULL)),
			FOREIGN KEY(provider_id) REFERENCES providers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			requester_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			window_id INTEGER,
			duration_minutes INTEGER NOT NULL,
			price_usd INTEGER NOT NULL,
			product TEXT NOT NULL DEFAULT 'pnp_live',
			scheduled_start INTEGER NOT NULL,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			transaction_ref TEXT NOT NULL DEFAULT '',
			video_room TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER,
			cancelled_at INTEGER,
			FOREIGN KEY(provider_id) REFERENCES providers(id)
		)`,
		`CREATE TABLE IF NOT EXISTS refund_requests (
			id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL,
			requester_id INTEGER NOT NULL,
			amount_usd INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			processed_by TEXT NOT NULL DEFAULT '',
			processed_at INTEGER,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(booking_id) REFERENCES bookings(id)
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL UNIQUE,
			requester_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comments TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			FOREIGN KEY(booking_id) REFERENCES bookings(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_requester_start
			ON bookings(requester_id, scheduled_start) WHERE status <> 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_windows_provider_start ON availability_windows(provider_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_windows_booking_id ON availability_windows(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_provider_start ON bookings(provider_id, scheduled_start)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status, payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_refunds_booking_id ON refund_requests(booking_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_refunds_open_booking
			ON refund_requests(booking_id) WHERE status <> 'rejected'`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// Close закрывает подключение к базе данных
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет подключение к базе данных
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx выполняет fn в транзакции; любая ошибка откатывает все изменения
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.ErrDatabaseConnection.WithError(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// queryer - общий интерфейс *sql.DB и *sql.Tx для чтения внутри и вне транзакции
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toUnix(t time.Time) int64 {
	return t.UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders возвращает "?, ?, ?" для n аргументов
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
