package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
	outboxpg "github.com/dmehra2102/smart-food-ordering/pkg/outbox/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, events ...outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, user_id, restaurant_id, total_amount, delivery_address, payment_method, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.RestaurantID, o.TotalAmount.String(), o.DeliveryAddress, o.PaymentMethod, o.Status, o.PaymentStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, position, item_id, quantity, price) VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, i, item.ItemID, item.Quantity, item.Price.String())
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	if err = outboxpg.Insert(ctx, tx, events...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT item_id, quantity, price::text FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.Item
		var price string
		if err := rows.Scan(&item.ItemID, &item.Quantity, &price); err != nil {
			return domain.Order{}, err
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return domain.Order{}, fmt.Errorf("order %s item price: %w", id, err)
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// ListByUser returns order headers only; items are loaded by Get.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, payment domain.PaymentStatus, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $3, payment_status = $4, updated_at = $5 WHERE id = $1 AND status = $2`,
		id, from, to, payment, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConcurrentUpdate
}

const orderColumns = `id, user_id, restaurant_id, total_amount::text, delivery_address, payment_method, status, payment_status, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var total string
	if err := row.Scan(&o.ID, &o.UserID, &o.RestaurantID, &total, &o.DeliveryAddress, &o.PaymentMethod,
		&o.Status, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	var err error
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	return o, nil
}
