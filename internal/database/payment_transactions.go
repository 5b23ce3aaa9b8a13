package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createPaymentTransaction = `
INSERT INTO payment_transactions (
	transaction_id, guardian_id, currency, total_amount, payment_method,
	payment_status, expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, transaction_id, guardian_id, currency, total_amount, payment_method,
          payment_status, confirmation_code, gateway_transaction_id, payment_url,
          expires_at, paid_at, created_at, updated_at
`

type CreatePaymentTransactionParams struct {
	TransactionID string
	GuardianID    uuid.UUID
	Currency      string
	TotalAmount   pgtype.Numeric
	PaymentMethod pgtype.Text
	PaymentStatus string
	ExpiresAt     pgtype.Timestamptz
}

func (q *Queries) CreatePaymentTransaction(ctx context.Context, arg CreatePaymentTransactionParams) (PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, createPaymentTransaction,
		arg.TransactionID,
		arg.GuardianID,
		arg.Currency,
		arg.TotalAmount,
		arg.PaymentMethod,
		arg.PaymentStatus,
		arg.ExpiresAt,
	)
	return scanPaymentTransaction(row)
}

const getPaymentTransaction = `
SELECT id, transaction_id, guardian_id, currency, total_amount, payment_method,
       payment_status, confirmation_code, gateway_transaction_id, payment_url,
       expires_at, paid_at, created_at, updated_at
FROM payment_transactions
WHERE transaction_id = $1
`

func (q *Queries) GetPaymentTransaction(ctx context.Context, transactionID string) (PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, getPaymentTransaction, transactionID)
	return scanPaymentTransaction(row)
}

const setPaymentTransactionGateway = `
UPDATE payment_transactions
SET payment_url = $2, gateway_transaction_id = $3, updated_at = now()
WHERE transaction_id = $1
RETURNING id, transaction_id, guardian_id, currency, total_amount, payment_method,
          payment_status, confirmation_code, gateway_transaction_id, payment_url,
          expires_at, paid_at, created_at, updated_at
`

type SetPaymentTransactionGatewayParams struct {
	TransactionID        string
	PaymentURL           pgtype.Text
	GatewayTransactionID pgtype.Text
}

// SetPaymentTransactionGateway back-fills the payment URL and gateway id
// after the gateway call (saga step 6). Idempotent per transaction id.
func (q *Queries) SetPaymentTransactionGateway(ctx context.Context, arg SetPaymentTransactionGatewayParams) (PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, setPaymentTransactionGateway,
		arg.TransactionID,
		arg.PaymentURL,
		arg.GatewayTransactionID,
	)
	return scanPaymentTransaction(row)
}

const markPaymentTransactionPaid = `
UPDATE payment_transactions
SET payment_status = 'PAID', confirmation_code = $2, payment_method = COALESCE($3, payment_method),
    paid_at = now(), updated_at = now()
WHERE transaction_id = $1 AND payment_status = 'PENDING'
RETURNING id, transaction_id, guardian_id, currency, total_amount, payment_method,
          payment_status, confirmation_code, gateway_transaction_id, payment_url,
          expires_at, paid_at, created_at, updated_at
`

type MarkPaymentTransactionPaidParams struct {
	TransactionID    string
	ConfirmationCode pgtype.Text
	PaymentMethod    pgtype.Text
}

// MarkPaymentTransactionPaid is a conditional update-by-id: it only
// succeeds while the transaction is still PENDING, which makes the
// PENDING -> PAID transition race-free without row locks. Returns
// pgx.ErrNoRows when the transaction is already terminal.
func (q *Queries) MarkPaymentTransactionPaid(ctx context.Context, arg MarkPaymentTransactionPaidParams) (PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, markPaymentTransactionPaid,
		arg.TransactionID,
		arg.ConfirmationCode,
		arg.PaymentMethod,
	)
	return scanPaymentTransaction(row)
}

const markPaymentTransactionFailed = `
UPDATE payment_transactions
SET payment_status = 'FAILED', updated_at = now()
WHERE transaction_id = $1 AND payment_status = 'PENDING'
`

// MarkPaymentTransactionFailed closes a PENDING transaction after a
// definitive gateway rejection. Conditional like the PAID transition;
// a no-op once the transaction is terminal.
func (q *Queries) MarkPaymentTransactionFailed(ctx context.Context, transactionID string) error {
	_, err := q.db.Exec(ctx, markPaymentTransactionFailed, transactionID)
	return err
}

const expirePaymentTransactions = `
UPDATE payment_transactions
SET payment_status = 'EXPIRED', updated_at = now()
WHERE payment_status = 'PENDING' AND expires_at IS NOT NULL AND expires_at < $1
RETURNING transaction_id
`

// ExpirePaymentTransactions marks every stale pending transaction
// EXPIRED and returns their transaction ids. Orders under them stay
// PENDING: payment expired, not fulfillment.
func (q *Queries) ExpirePaymentTransactions(ctx context.Context, before pgtype.Timestamptz) ([]string, error) {
	rows, err := q.db.Query(ctx, expirePaymentTransactions, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const createOrderTransaction = `
INSERT INTO order_transactions (order_id, payment_transaction_id, amount)
VALUES ($1, $2, $3)
RETURNING id, order_id, payment_transaction_id, amount, created_at
`

type CreateOrderTransactionParams struct {
	OrderID              uuid.UUID
	PaymentTransactionID uuid.UUID
	Amount               pgtype.Numeric
}

func (q *Queries) CreateOrderTransaction(ctx context.Context, arg CreateOrderTransactionParams) (OrderTransaction, error) {
	row := q.db.QueryRow(ctx, createOrderTransaction,
		arg.OrderID,
		arg.PaymentTransactionID,
		arg.Amount,
	)
	var ot OrderTransaction
	err := row.Scan(&ot.ID, &ot.OrderID, &ot.PaymentTransactionID, &ot.Amount, &ot.CreatedAt)
	return ot, err
}

const listOrderTransactions = `
SELECT id, order_id, payment_transaction_id, amount, created_at
FROM order_transactions
WHERE payment_transaction_id = $1
ORDER BY created_at
`

// ListOrderTransactions returns the per-order links under a payment
// transaction, oldest first. Reconciliation reads these when the link
// sum disagrees with the transaction total.
func (q *Queries) ListOrderTransactions(ctx context.Context, paymentTransactionID uuid.UUID) ([]OrderTransaction, error) {
	rows, err := q.db.Query(ctx, listOrderTransactions, paymentTransactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderTransaction
	for rows.Next() {
		var ot OrderTransaction
		if err := rows.Scan(&ot.ID, &ot.OrderID, &ot.PaymentTransactionID, &ot.Amount, &ot.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ot)
	}
	return items, rows.Err()
}

const sumOrderTransactionAmounts = `
SELECT COALESCE(SUM(amount), 0)
FROM order_transactions
WHERE payment_transaction_id = $1
`

func (q *Queries) SumOrderTransactionAmounts(ctx context.Context, paymentTransactionID uuid.UUID) (pgtype.Numeric, error) {
	row := q.db.QueryRow(ctx, sumOrderTransactionAmounts, paymentTransactionID)
	var sum pgtype.Numeric
	err := row.Scan(&sum)
	return sum, err
}

func scanPaymentTransaction(row interface{ Scan(dest ...any) error }) (PaymentTransaction, error) {
	var t PaymentTransaction
	err := row.Scan(
		&t.ID,
		&t.TransactionID,
		&t.GuardianID,
		&t.Currency,
		&t.TotalAmount,
		&t.PaymentMethod,
		&t.PaymentStatus,
		&t.ConfirmationCode,
		&t.GatewayTransactionID,
		&t.PaymentURL,
		&t.ExpiresAt,
		&t.PaidAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}
