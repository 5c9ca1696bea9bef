package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrAttemptNotFound = errors.New("checkout attempt not found")

// Repository records every checkout submission keyed by its idempotency token.
type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.PingContext(ctx); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "ledger_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// Record inserts or advances an attempt. A settled attempt is never moved
// back to SUBMITTING.
func (r *Repository) Record(ctx context.Context, a domain.CheckoutAttempt) error {
	query := `INSERT INTO checkout_attempts (client_mutation_id, session_id, status, payment_method, order_id, error_code, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	          ON CONFLICT (client_mutation_id) DO UPDATE SET
	              status     = EXCLUDED.status,
	              order_id   = COALESCE(EXCLUDED.order_id, checkout_attempts.order_id),
	              error_code = EXCLUDED.error_code,
	              updated_at = NOW()
	          WHERE checkout_attempts.status = $7 OR EXCLUDED.status <> $7`

	var orderID sql.NullInt64
	if a.OrderID != nil {
		orderID = sql.NullInt64{Int64: *a.OrderID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		a.ClientMutationID,
		a.SessionID,
		string(a.Status),
		a.PaymentMethod,
		orderID,
		a.ErrorCode,
		string(domain.CheckoutStatusSubmitting))
	if err != nil {
		return fmt.Errorf("record checkout attempt: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, clientMutationID string) (*domain.CheckoutAttempt, error) {
	query := `SELECT client_mutation_id, session_id, status, payment_method, order_id, error_code, created_at, updated_at
	          FROM checkout_attempts WHERE client_mutation_id = $1`

	var a domain.CheckoutAttempt
	var status string
	var orderID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, clientMutationID).Scan(
		&a.ClientMutationID,
		&a.SessionID,
		&status,
		&a.PaymentMethod,
		&orderID,
		&a.ErrorCode,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout attempt: %w", err)
	}

	a.Status = domain.CheckoutStatus(status)
	if orderID.Valid {
		a.OrderID = &orderID.Int64
	}
	return &a, nil
}

// ListBySession returns a visitor's attempts, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.CheckoutAttempt, error) {
	query := `SELECT client_mutation_id, session_id, status, payment_method, order_id, error_code, created_at, updated_at
	          FROM checkout_attempts WHERE session_id = $1
	          ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query checkout attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckoutAttempt
	for rows.Next() {
		var a domain.CheckoutAttempt
		var status string
		var orderID sql.NullInt64
		if err := rows.Scan(&a.ClientMutationID, &a.SessionID, &status, &a.PaymentMethod, &orderID, &a.ErrorCode, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkout attempt: %w", err)
		}
		a.Status = domain.CheckoutStatus(status)
		if orderID.Valid {
			id := orderID.Int64
			a.OrderID = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) Close() error {
	return r.db.Close()
}
