package orders

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/checkout-pipeline/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const orderColumns = `id, cart_id, shopper_id, status, shipping, payment, items, shops,
	total_raw, total_discount, total_payable, currency, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
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

func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	shipping, payment, items, shops, err := marshalOrderParts(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `INSERT INTO orders (id, cart_id, shopper_id, status, shipping, payment, items, shops,
	              total_raw, total_discount, total_payable, currency, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		order.ID,
		order.CartID,
		order.ShopperID,
		order.Status,
		shipping,
		payment,
		items,
		shops,
		order.TotalRaw,
		order.TotalDiscount,
		order.TotalPayable,
		order.Currency,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err := insertEvent(ctx, tx, order, EventOrderPlaced); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByShopper(ctx context.Context, shopperID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE shopper_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, shopperID)
	if err != nil {
		return nil, fmt.Errorf("query orders by shopper id: %w", err)
	}
	return collectOrders(rows)
}

func (r *Repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE status = $1 AND created_at < $2
	          ORDER BY created_at
	          LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, domain.OrderStatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	return collectOrders(rows)
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE orders SET status = $1, updated_at = NOW()
	          WHERE id = $2 AND status = $3
	          RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, query, to, id, from))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if e2 := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); e2 != nil {
			return nil, fmt.Errorf("check order: %w", e2)
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if err := insertEvent(ctx, tx, order, eventTypeFor(to)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return order, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM outbox_events
	          WHERE processed_at IS NULL
	          ORDER BY id
	          LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var event OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.ID, &event.AggregateID, &event.EventType, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		event.Payload = payload
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func insertEvent(ctx context.Context, tx *sql.Tx, order *domain.Order, eventType string) error {
	payload, err := json.Marshal(NewOrderEvent(order, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		order.ID.String(), eventType, string(payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func marshalOrderParts(order *domain.Order) (shipping, payment, items, shops string, err error) {
	parts := []struct {
		name string
		v    any
		out  *string
	}{
		{"shipping", order.Shipping, &shipping},
		{"payment", order.Payment, &payment},
		{"items", order.Items, &items},
		{"shops", order.Shops, &shops},
	}
	for _, p := range parts {
		b, e := json.Marshal(p.v)
		if e != nil {
			return "", "", "", "", fmt.Errorf("failed to marshal order %s: %w", p.name, e)
		}
		*p.out = string(b)
	}
	return shipping, payment, items, shops, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var shipping, payment, items, shops []byte

	err := row.Scan(
		&order.ID,
		&order.CartID,
		&order.ShopperID,
		&order.Status,
		&shipping,
		&payment,
		&items,
		&shops,
		&order.TotalRaw,
		&order.TotalDiscount,
		&order.TotalPayable,
		&order.Currency,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for name, part := range map[string]struct {
		raw []byte
		v   any
	}{
		"shipping": {shipping, &order.Shipping},
		"payment":  {payment, &order.Payment},
		"items":    {items, &order.Items},
		"shops":    {shops, &order.Shops},
	} {
		if err := json.Unmarshal(part.raw, part.v); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", name, err)
		}
	}

	return &order, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}
