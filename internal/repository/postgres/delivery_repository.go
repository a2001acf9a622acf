package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fjod/jewel_cart/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DeliveryRepository is the notification delivery log.
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(ctx context.Context, dsn string) (*DeliveryRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	return &DeliveryRepository{db: db}, nil
}

func (r *DeliveryRepository) RunMigrations() error {
	driver, err := migratepg.WithInstance(r.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) Close() error {
	return r.db.Close()
}

// RecordDeliveries stores a batch in one transaction.
func (r *DeliveryRepository) RecordDeliveries(ctx context.Context, deliveries []domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notification_deliveries
			(id, order_id, order_number, sink, channel, success, error, duration_ms, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range deliveries {
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, d.OrderID, d.OrderNumber, d.Sink, d.Channel,
			d.OK, d.Error, d.DurationMs, d.AttemptedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert delivery for sink %s: %w", d.Sink, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deliveries: %w", err)
	}
	return nil
}

// ListDeliveries returns the attempts for one order, oldest first.
func (r *DeliveryRepository) ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, order_number, sink, channel, success, error, duration_ms, attempted_at
		FROM notification_deliveries
		WHERE order_id = $1
		ORDER BY attempted_at, sink`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	out := []domain.Delivery{}
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.OrderID, &d.OrderNumber, &d.Sink, &d.Channel,
			&d.OK, &d.Error, &d.DurationMs, &d.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
