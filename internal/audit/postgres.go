package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"payrouter/internal/common/database"
	"payrouter/internal/transfer"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRecorder appends transitions to the transfer_transitions table.
type PostgresRecorder struct {
	db database.Querier
}

// NewPostgresRecorder creates an append-only transition recorder.
func NewPostgresRecorder(db database.Querier) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts the transition.
func (r *PostgresRecorder) Record(ctx context.Context, t transfer.Transition) error {
	query := `
		INSERT INTO transfer_transitions (
			payment_intent, from_status, to_status, destination,
			amount_minor, currency, retry, error_text, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		t.PaymentID, string(t.From), string(t.To), t.Destination,
		t.AmountMinor, t.Currency, t.Retry, t.Error, t.At,
	)
	if err != nil {
		return fmt.Errorf("inserting transfer transition: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("opening database for migration: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
