package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Errors returned by the confirmation handler.
var (
	ErrTransactionTerminal    = errors.New("payment transaction already settled")
	ErrReconciliationMismatch = errors.New("linked order amounts do not match transaction total")
)

// ConfirmationStore defines the DB methods reconciliation needs.
// Satisfied by *database.Queries.
type ConfirmationStore interface {
	GetPaymentTransaction(ctx context.Context, transactionID string) (database.PaymentTransaction, error)
	SumOrderTransactionAmounts(ctx context.Context, paymentTransactionID uuid.UUID) (pgtype.Numeric, error)
	ListOrderTransactions(ctx context.Context, paymentTransactionID uuid.UUID) ([]database.OrderTransaction, error)
	MarkPaymentTransactionPaid(ctx context.Context, arg database.MarkPaymentTransactionPaidParams) (database.PaymentTransaction, error)
	MarkOrdersPaidByTransaction(ctx context.Context, transactionID string) (int64, error)
}

// Notifier pushes payment status changes to connected guardians.
// Satisfied by *ws.Hub; nil disables notifications.
type Notifier interface {
	PaymentStatusChanged(guardianID uuid.UUID, transactionID, status string)
}

// ConfirmResult reports a confirmation outcome. AlreadyPaid marks the
// idempotent no-op path.
type ConfirmResult struct {
	Transaction   database.PaymentTransaction
	OrdersUpdated int64
	AlreadyPaid   bool
}

// ConfirmationHandler reconciles asynchronous payment outcomes against
// a persisted transaction: the gateway's redirect path only needs the
// current status observed, while the bank-transfer provider has no
// callback at all and relies on a user-asserted confirmation.
type ConfirmationHandler struct {
	store    ConfirmationStore
	notifier Notifier
}

// NewConfirmationHandler creates a ConfirmationHandler. notifier may be
// nil.
func NewConfirmationHandler(store ConfirmationStore, notifier Notifier) *ConfirmationHandler {
	return &ConfirmationHandler{store: store, notifier: notifier}
}

// Status observes the transaction's current payment status (the
// automatic reconciliation path: the gateway updates the row out of
// band and the UI polls this).
func (h *ConfirmationHandler) Status(ctx context.Context, transactionID string) (database.PaymentTransaction, error) {
	txn, err := h.store.GetPaymentTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PaymentTransaction{}, ErrTransactionNotFound
		}
		return database.PaymentTransaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

// ConfirmManual settles a transaction on the user's own assertion. The
// bank-transfer provider offers no webhook or redirect, so the system
// accepts the claim and records whatever confirmation code the user
// supplied for later audit. Idempotent: confirming an already-paid
// transaction changes nothing.
func (h *ConfirmationHandler) ConfirmManual(ctx context.Context, transactionID, confirmationCode string) (*ConfirmResult, error) {
	txn, err := h.store.GetPaymentTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	if txn.PaymentStatus == enum.PaymentStatusPaid {
		return &ConfirmResult{Transaction: txn, AlreadyPaid: true}, nil
	}
	if enum.IsTerminalPaymentStatus(txn.PaymentStatus) {
		return nil, fmt.Errorf("%w: status %s", ErrTransactionTerminal, txn.PaymentStatus)
	}

	// The link amounts are denormalized copies of each order total;
	// their sum must reproduce the transaction total exactly. A
	// mismatch means the rows were tampered with or half-written and
	// goes to manual review, never silently accepted.
	linkSum, err := h.store.SumOrderTransactionAmounts(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("sum links: %w", err)
	}
	total := numericToDecimal(txn.TotalAmount)
	if !numericToDecimal(linkSum).Equal(total) {
		log.Printf("WARN: reconciliation mismatch on %s: links sum %s, transaction total %s",
			transactionID, numericToDecimal(linkSum), total)
		// Dump the individual links so manual review can see which
		// order the mismatch comes from.
		if links, lerr := h.store.ListOrderTransactions(ctx, txn.ID); lerr == nil {
			for _, l := range links {
				log.Printf("WARN:   link %s: order %s amount %s", l.ID, l.OrderID, numericToDecimal(l.Amount))
			}
		}
		return nil, fmt.Errorf("%w: links %s vs total %s", ErrReconciliationMismatch,
			numericToDecimal(linkSum), total)
	}

	code := pgtype.Text{}
	if confirmationCode != "" {
		code = pgtype.Text{String: confirmationCode, Valid: true}
	}
	updated, err := h.store.MarkPaymentTransactionPaid(ctx, database.MarkPaymentTransactionPaidParams{
		TransactionID:    transactionID,
		ConfirmationCode: code,
		PaymentMethod:    pgtype.Text{String: enum.PaymentMethodTransfer, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a race against another confirmation; re-read to
			// tell idempotent success from a terminal transition.
			current, rerr := h.store.GetPaymentTransaction(ctx, transactionID)
			if rerr == nil && current.PaymentStatus == enum.PaymentStatusPaid {
				return &ConfirmResult{Transaction: current, AlreadyPaid: true}, nil
			}
			return nil, fmt.Errorf("%w: transaction no longer pending", ErrTransactionTerminal)
		}
		return nil, fmt.Errorf("mark transaction paid: %w", err)
	}

	// Bulk flip keyed by transaction id, not per order line.
	count, err := h.store.MarkOrdersPaidByTransaction(ctx, transactionID)
	if err != nil {
		// The transaction is PAID but its lines are not; surface the
		// error so the caller re-runs the bulk update. Re-running is
		// safe: the statement only touches PENDING lines.
		return nil, fmt.Errorf("mark orders paid: %w", err)
	}

	if h.notifier != nil {
		h.notifier.PaymentStatusChanged(updated.GuardianID, transactionID, updated.PaymentStatus)
	}

	return &ConfirmResult{Transaction: updated, OrdersUpdated: count}, nil
}
