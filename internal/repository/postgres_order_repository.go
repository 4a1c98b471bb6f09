package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/harshees/storefront/internal/domain"
	"github.com/lib/pq"
)

const orderColumns = `id, order_number, user_id, items, shipping_address, payment_method, coupon_code,
	subtotal_minor, shipping_minor, tax_minor, discount_minor, total_minor, currency,
	order_status, payment_status, is_delivered, delivered_at, tracking_number, courier_service,
	order_notes, cancel_reason, refund_amount_minor, refund_reason, status_history, created_at, updated_at`

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(cred *Credentials) (*PostgresOrderRepository, error) {
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
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresOrderRepository{db: db}, nil
}

func (r *PostgresOrderRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// Ping backs the readiness probe.
func (r *PostgresOrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresOrderRepository) SaveOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	history := order.StatusHistory
	if history == nil {
		history = []domain.StatusEntry{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal status history: %w", err)
	}

	query := `INSERT INTO orders (id, order_number, user_id, items, shipping_address, payment_method, coupon_code,
	              subtotal_minor, shipping_minor, tax_minor, discount_minor, total_minor, currency,
	              order_status, payment_status, order_notes, status_history, created_at, updated_at)
	          VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::jsonb, $18, $18)`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		string(itemsJSON),
		string(addressJSON),
		string(order.PaymentMethod),
		order.CouponCode,
		order.Pricing.SubtotalMinor,
		order.Pricing.ShippingMinor,
		order.Pricing.TaxMinor,
		order.Pricing.DiscountMinor,
		order.Pricing.TotalMinor,
		order.Currency,
		string(order.OrderStatus),
		string(order.PaymentStatus),
		order.OrderNotes,
		string(historyJSON),
		order.CreatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

// UpdateOrder applies patch in one statement. Unset fields keep their value,
// delivered_at is only ever written once, and history entries are appended.
func (r *PostgresOrderRepository) UpdateOrder(ctx context.Context, id uuid.UUID, patch domain.OrderPatch) (*domain.Order, error) {
	var appendJSON sql.NullString
	if patch.AppendHistory != nil {
		b, err := json.Marshal([]domain.StatusEntry{*patch.AppendHistory})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status entry: %w", err)
		}
		appendJSON = sql.NullString{String: string(b), Valid: true}
	}
	deliveredAt := patch.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	var orderStatus, paymentStatus sql.NullString
	if patch.OrderStatus != nil {
		orderStatus = sql.NullString{String: string(*patch.OrderStatus), Valid: true}
	}
	if patch.PaymentStatus != nil {
		paymentStatus = sql.NullString{String: string(*patch.PaymentStatus), Valid: true}
	}
	var refundAmount sql.NullInt64
	if patch.RefundAmountMinor != nil {
		refundAmount = sql.NullInt64{Int64: *patch.RefundAmountMinor, Valid: true}
	}

	query := `UPDATE orders SET
	              order_status        = COALESCE($2, order_status),
	              payment_status      = COALESCE($3, payment_status),
	              is_delivered        = is_delivered OR $4::boolean,
	              delivered_at        = CASE WHEN $4::boolean THEN COALESCE(delivered_at, $5::timestamptz) ELSE delivered_at END,
	              tracking_number     = COALESCE($6, tracking_number),
	              courier_service     = COALESCE($7, courier_service),
	              cancel_reason       = COALESCE($8, cancel_reason),
	              refund_amount_minor = COALESCE($9, refund_amount_minor),
	              refund_reason       = COALESCE($10, refund_reason),
	              status_history      = status_history || COALESCE($11::jsonb, '[]'::jsonb),
	              updated_at          = NOW()
	          WHERE id = $1
	          RETURNING ` + orderColumns

	row := r.db.QueryRowContext(ctx, query,
		id,
		orderStatus,
		paymentStatus,
		patch.MarkDelivered,
		deliveredAt,
		nullString(patch.TrackingNumber),
		nullString(patch.CourierService),
		nullString(patch.CancelReason),
		refundAmount,
		nullString(patch.RefundReason),
		appendJSON)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) FindOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
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

// ListOrders returns one page of a user's orders, newest first, together with
// the user's total order count.
func (r *PostgresOrderRepository) ListOrders(ctx context.Context, userID string, page, limit int) ([]*domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1
	          ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, total, nil
}

func (r *PostgresOrderRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                               domain.Order
		itemsJSON, addressJSON, historyJSON []byte
		paymentMethod, orderStatus, payment string
		deliveredAt                         sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&itemsJSON,
		&addressJSON,
		&paymentMethod,
		&order.CouponCode,
		&order.Pricing.SubtotalMinor,
		&order.Pricing.ShippingMinor,
		&order.Pricing.TaxMinor,
		&order.Pricing.DiscountMinor,
		&order.Pricing.TotalMinor,
		&order.Currency,
		&orderStatus,
		&payment,
		&order.IsDelivered,
		&deliveredAt,
		&order.TrackingNumber,
		&order.CourierService,
		&order.OrderNotes,
		&order.CancelReason,
		&order.RefundAmountMinor,
		&order.RefundReason,
		&historyJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentMethod = domain.PaymentMethod(paymentMethod)
	order.OrderStatus = domain.OrderStatus(orderStatus)
	order.PaymentStatus = domain.PaymentStatus(payment)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		order.DeliveredAt = &t
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &order.StatusHistory); err != nil {
		return nil, fmt.Errorf("unmarshal status history: %w", err)
	}
	return &order, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
