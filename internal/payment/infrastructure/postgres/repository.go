package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
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

func (r *Repository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	var p domain.Payment
	var amount string
	err := r.pool.QueryRow(ctx, `SELECT id, order_id, user_id, amount::text, payment_method, status, reason, created_at
		FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.UserID, &amount, &p.PaymentMethod, &p.Status, &p.Reason, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Payment{}, fmt.Errorf("payment %s amount: %w", p.ID, err)
	}
	return p, nil
}

func (r *Repository) SaveWithOutbox(ctx context.Context, p domain.Payment, events ...outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `INSERT INTO payments (id, order_id, user_id, amount, payment_method, status, reason, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO NOTHING`,
		p.ID, p.OrderID, p.UserID, p.Amount.String(), p.PaymentMethod, p.Status, p.Reason, p.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyProcessed
	}

	if err := outboxpg.Insert(ctx, tx, events...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
