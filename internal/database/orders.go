package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createOrder = `
INSERT INTO orders (
	guardian_id, student_id, menu_item_id, delivery_date, quantity,
	unit_price, total_amount, status, payment_status, transaction_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, guardian_id, student_id, menu_item_id, delivery_date, quantity,
          unit_price, total_amount, status, payment_status, transaction_id,
          created_at, updated_at
`

type CreateOrderParams struct {
	GuardianID    uuid.UUID
	StudentID     uuid.UUID
	MenuItemID    uuid.UUID
	DeliveryDate  pgtype.Date
	Quantity      int32
	UnitPrice     pgtype.Numeric
	TotalAmount   pgtype.Numeric
	Status        string
	PaymentStatus string
	TransactionID pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.GuardianID,
		arg.StudentID,
		arg.MenuItemID,
		arg.DeliveryDate,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalAmount,
		arg.Status,
		arg.PaymentStatus,
		arg.TransactionID,
	)
	return scanOrder(row)
}

const listOrdersByTransaction = `
SELECT id, guardian_id, student_id, menu_item_id, delivery_date, quantity,
       unit_price, total_amount, status, payment_status, transaction_id,
       created_at, updated_at
FROM orders
WHERE transaction_id = $1
ORDER BY delivery_date, created_at
`

func (q *Queries) ListOrdersByTransaction(ctx context.Context, transactionID string) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByTransaction, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

const listOrdersByGuardian = `
SELECT id, guardian_id, student_id, menu_item_id, delivery_date, quantity,
       unit_price, total_amount, status, payment_status, transaction_id,
       created_at, updated_at
FROM orders
WHERE guardian_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListOrdersByGuardian(ctx context.Context, guardianID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByGuardian, guardianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

const countActiveOrdersForStudentDate = `
SELECT COUNT(*)
FROM orders
WHERE student_id = $1 AND delivery_date = $2 AND status <> 'CANCELLED'
`

type CountActiveOrdersForStudentDateParams struct {
	StudentID    uuid.UUID
	DeliveryDate pgtype.Date
}

func (q *Queries) CountActiveOrdersForStudentDate(ctx context.Context, arg CountActiveOrdersForStudentDateParams) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveOrdersForStudentDate, arg.StudentID, arg.DeliveryDate)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const cancelOrderIfPending = `
UPDATE orders
SET status = 'CANCELLED', updated_at = now()
WHERE id = $1 AND guardian_id = $2 AND status = 'PENDING' AND payment_status = 'PENDING'
RETURNING id, guardian_id, student_id, menu_item_id, delivery_date, quantity,
          unit_price, total_amount, status, payment_status, transaction_id,
          created_at, updated_at
`

type CancelOrderIfPendingParams struct {
	ID         uuid.UUID
	GuardianID uuid.UUID
}

// CancelOrderIfPending cancels an order only while payment is still
// pending. Returns pgx.ErrNoRows when the order is missing, owned by
// another guardian, or already paid/cancelled.
func (q *Queries) CancelOrderIfPending(ctx context.Context, arg CancelOrderIfPendingParams) (Order, error) {
	row := q.db.QueryRow(ctx, cancelOrderIfPending, arg.ID, arg.GuardianID)
	return scanOrder(row)
}

const markOrdersPaidByTransaction = `
UPDATE orders
SET payment_status = 'PAID', status = 'PAID', updated_at = now()
WHERE transaction_id = $1 AND payment_status = 'PENDING'
`

// MarkOrdersPaidByTransaction flips every pending order under the
// transaction to PAID in one statement. Returns the number of rows
// updated.
func (q *Queries) MarkOrdersPaidByTransaction(ctx context.Context, transactionID string) (int64, error) {
	tag, err := q.db.Exec(ctx, markOrdersPaidByTransaction, transactionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.GuardianID,
		&o.StudentID,
		&o.MenuItemID,
		&o.DeliveryDate,
		&o.Quantity,
		&o.UnitPrice,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentStatus,
		&o.TransactionID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

func scanOrders(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Order, error) {
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
