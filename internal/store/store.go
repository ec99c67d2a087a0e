package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	db DB

	Users          UserRepository
	Calendars      CalendarRepository
	CalendarShares CalendarShareRepository
}

// New wires concrete repository implementations with a shared pool.
func New(db DB) *Store {
	return &Store{
		db:             db,
		Users:          &userRepo{db: db},
		Calendars:      &calendarRepo{db: db},
		CalendarShares: &calendarShareRepo{db: db},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.db.Ping(ctx)
}

// Migrate applies pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	defer observeDB(ctx, "db.migrate")()
	return ApplyMigrations(ctx, s.db)
}
