package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/orderledger/apiserver/types"
)

// OrderRepository handles persistence for orders. Every operation is scoped
// to the owning user's id; rows belonging to other users behave as if they
// did not exist.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListMonth returns the user's orders for the given month key, date
// ascending with id as the tie-break.
func (r *OrderRepository) ListMonth(ctx context.Context, userID int, month string) ([]types.Order, error) {
	const query = `
		SELECT id, user_id, amount_cents, order_number, order_date, month, created_at, updated_at
		FROM orders
		WHERE user_id = $1 AND month = $2
		ORDER BY order_date, id`
	rows, err := r.db.QueryContext(ctx, query, userID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]types.Order, 0)
	for rows.Next() {
		var order types.Order
		if err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.AmountCents,
			&order.OrderNumber,
			&order.Date,
			&order.Month,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// Months returns the distinct month keys the user has orders in, most
// recent first.
func (r *OrderRepository) Months(ctx context.Context, userID int) ([]string, error) {
	const query = `
		SELECT DISTINCT month
		FROM orders
		WHERE user_id = $1
		ORDER BY month DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := make([]string, 0)
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, err
		}
		months = append(months, month)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return months, nil
}

// MonthTotal returns the sum of order amounts for the user's month, in
// cents. Zero when the month is empty.
func (r *OrderRepository) MonthTotal(ctx context.Context, userID int, month string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM orders
		WHERE user_id = $1 AND month = $2`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, userID, month).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Create inserts a new order. The duplicate pre-check and the insert run in
// one transaction; the unique index on (user_id, month, order_number) is
// the authoritative guard against concurrent duplicates.
func (r *OrderRepository) Create(ctx context.Context, order types.Order) (types.Order, error) {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Order{}, err
	}
	defer tx.Rollback()

	taken, err := orderNumberTaken(ctx, tx, order.UserID, order.Month, order.OrderNumber, 0)
	if err != nil {
		return types.Order{}, err
	}
	if taken {
		return types.Order{}, ErrDuplicateOrderNumber
	}

	const query = `
		INSERT INTO orders (user_id, amount_cents, order_number, order_date, month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		order.UserID,
		order.AmountCents,
		order.OrderNumber,
		order.Date,
		order.Month,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Order{}, ErrDuplicateOrderNumber
		}
		return types.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return types.Order{}, ErrDuplicateOrderNumber
		}
		return types.Order{}, err
	}
	return order, nil
}

// Update overwrites the order's amount, number and date. The uniqueness
// re-check runs against the order's new month and excludes the row itself.
func (r *OrderRepository) Update(ctx context.Context, order types.Order) (types.Order, error) {
	order.UpdatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Order{}, err
	}
	defer tx.Rollback()

	const ownQuery = `
		SELECT created_at FROM orders
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`
	if err := tx.QueryRowContext(ctx, ownQuery, order.ID, order.UserID).Scan(&order.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, ErrNotFound
		}
		return types.Order{}, err
	}

	taken, err := orderNumberTaken(ctx, tx, order.UserID, order.Month, order.OrderNumber, order.ID)
	if err != nil {
		return types.Order{}, err
	}
	if taken {
		return types.Order{}, ErrDuplicateOrderNumber
	}

	const query = `
		UPDATE orders
		SET amount_cents = $1,
			order_number = $2,
			order_date = $3,
			month = $4,
			updated_at = $5
		WHERE id = $6 AND user_id = $7`
	if _, err := tx.ExecContext(
		ctx,
		query,
		order.AmountCents,
		order.OrderNumber,
		order.Date,
		order.Month,
		order.UpdatedAt,
		order.ID,
		order.UserID,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Order{}, ErrDuplicateOrderNumber
		}
		return types.Order{}, err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return types.Order{}, ErrDuplicateOrderNumber
		}
		return types.Order{}, err
	}
	return order, nil
}

// Delete removes the user's order permanently.
func (r *OrderRepository) Delete(ctx context.Context, userID, id int) error {
	const query = `DELETE FROM orders WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// orderNumberTaken is the duplicate pre-check. It exists for a friendlier
// error than a raw constraint violation; excludeID skips the row being
// edited.
func orderNumberTaken(ctx context.Context, tx *sql.Tx, userID int, month, orderNumber string, excludeID int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = $1 AND month = $2 AND order_number = $3 AND id <> $4
		)`
	var taken bool
	if err := tx.QueryRowContext(ctx, query, userID, month, orderNumber, excludeID).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}
