package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/gateway"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Errors returned by the orchestrator.
var (
	ErrEmptyDrafts           = errors.New("order drafts are required")
	ErrDuplicateOrder        = errors.New("student already has an order for this date")
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrTransactionNotPayable = errors.New("payment transaction is not payable")
	ErrNoOrdersInTransaction = errors.New("payment transaction has no orders")
)

// PersistenceError marks a failure in saga steps 2-4. No payment link
// exists; the caller retries the whole submission under a fresh
// transaction id.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure at %s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// GatewayError marks a failure in saga steps 5-6. The order rows exist;
// the caller retries against the same transaction id, never by
// re-submitting.
type GatewayError struct {
	Step          string
	TransactionID string
	Err           error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway failure at %s for %s: %v", e.Step, e.TransactionID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// OrchestratorStore defines the DB methods the saga needs.
// Satisfied by *database.Queries.
type OrchestratorStore interface {
	CountActiveOrdersForStudentDate(ctx context.Context, arg database.CountActiveOrdersForStudentDateParams) (int64, error)
	CreatePaymentTransaction(ctx context.Context, arg database.CreatePaymentTransactionParams) (database.PaymentTransaction, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	ListOrdersByTransaction(ctx context.Context, transactionID string) ([]database.Order, error)
	CreateOrderTransaction(ctx context.Context, arg database.CreateOrderTransactionParams) (database.OrderTransaction, error)
	SetPaymentTransactionGateway(ctx context.Context, arg database.SetPaymentTransactionGatewayParams) (database.PaymentTransaction, error)
	MarkPaymentTransactionFailed(ctx context.Context, transactionID string) error
	GetPaymentTransaction(ctx context.Context, transactionID string) (database.PaymentTransaction, error)
	GetStudentForGuardian(ctx context.Context, arg database.GetStudentForGuardianParams) (database.Student, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
}

// PaymentGateway is the external payment provider's creation call.
// Satisfied by *gateway.Client.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error)
}

// SubmitResult is what the UI needs after a successful submission.
type SubmitResult struct {
	TransactionID        string
	PaymentURL           string
	GatewayTransactionID string
	Total                decimal.Decimal
	Orders               []database.Order
}

// Orchestrator runs the order + payment saga. Every step is a discrete
// network call executed strictly in sequence; there is no wrapping
// database transaction and no automatic rollback. A transaction left
// half-created stays PENDING until the expiry sweep claims it.
type Orchestrator struct {
	store OrchestratorStore
	gw    PaymentGateway
	ttl   time.Duration

	now      func() time.Time
	newTxnID func() string
}

// NewOrchestrator creates an Orchestrator with the given payment TTL.
func NewOrchestrator(store OrchestratorStore, gw PaymentGateway, ttl time.Duration) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gw:       gw,
		ttl:      ttl,
		now:      time.Now,
		newTxnID: NewTransactionID,
	}
}

// NewTransactionID returns a globally-unique, human-inspectable id of
// the form "tx-<unix millis>-<7 char base36 suffix>". It is used in
// email subjects and the reconciliation UI, so it stays short and
// readable rather than a UUID.
func NewTransactionID() string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 7)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("read random: %v", err))
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return fmt.Sprintf("tx-%d-%s", time.Now().UnixMilli(), buf)
}

// Submit runs saga steps 1-6 for one batch of drafts.
//
// Failure semantics: steps 2-4 surface *PersistenceError (no payment
// affordance may be shown), steps 5-6 surface *GatewayError carrying the
// transaction id for a retry that must not re-create order rows.
func (o *Orchestrator) Submit(ctx context.Context, guardianID uuid.UUID, drafts []OrderLineDraft, total decimal.Decimal) (*SubmitResult, error) {
	if len(drafts) == 0 {
		return nil, ErrEmptyDrafts
	}

	// The caller computes the total during the batch build. A
	// non-positive value here means the primary computation was unset
	// upstream; recompute from the drafts but flag it, never rely on
	// the fallback silently.
	if !total.IsPositive() {
		recomputed := decimal.Zero
		for _, d := range drafts {
			recomputed = recomputed.Add(d.TotalAmount)
		}
		log.Printf("WARN: submit for guardian %s received non-positive total %s, recomputed %s from %d drafts",
			guardianID, total, recomputed, len(drafts))
		total = recomputed
		if !total.IsPositive() {
			return nil, ErrEmptyDrafts
		}
	}

	// One order per student per delivery date; reject before any
	// persistence.
	type studentDate struct {
		student uuid.UUID
		date    string
	}
	seen := make(map[studentDate]bool)
	for _, d := range drafts {
		key := studentDate{d.StudentID, d.DeliveryDate.Format(dateLayout)}
		if seen[key] {
			continue
		}
		seen[key] = true
		count, err := o.store.CountActiveOrdersForStudentDate(ctx, database.CountActiveOrdersForStudentDateParams{
			StudentID:    d.StudentID,
			DeliveryDate: pgtype.Date{Time: d.DeliveryDate, Valid: true},
		})
		if err != nil {
			return nil, &PersistenceError{Step: "check duplicates", Err: err}
		}
		if count > 0 {
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateOrder, d.StudentName, key.date)
		}
	}

	// --- Step 1: allocate the transaction id ---
	txnID := o.newTxnID()

	// --- Step 2: persist the payment transaction ---
	txn, err := o.store.CreatePaymentTransaction(ctx, database.CreatePaymentTransactionParams{
		TransactionID: txnID,
		GuardianID:    guardianID,
		Currency:      enum.CurrencyCLP,
		TotalAmount:   decimalToNumeric(total),
		PaymentStatus: enum.PaymentStatusPending,
		ExpiresAt:     pgtype.Timestamptz{Time: o.now().Add(o.ttl), Valid: true},
	})
	if err != nil {
		return nil, &PersistenceError{Step: "create transaction", Err: err}
	}

	// --- Step 3: persist the order lines ---
	// A failure here leaves the transaction row orphaned in PENDING;
	// the expiry sweep reclaims it once expires_at passes.
	for i, d := range drafts {
		_, err := o.store.CreateOrder(ctx, database.CreateOrderParams{
			GuardianID:    guardianID,
			StudentID:     d.StudentID,
			MenuItemID:    d.MenuItemID,
			DeliveryDate:  pgtype.Date{Time: d.DeliveryDate, Valid: true},
			Quantity:      d.Quantity,
			UnitPrice:     decimalToNumeric(d.UnitPrice),
			TotalAmount:   decimalToNumeric(d.TotalAmount),
			Status:        enum.OrderStatusPending,
			PaymentStatus: enum.PaymentStatusPending,
			TransactionID: pgtype.Text{String: txnID, Valid: true},
		})
		if err != nil {
			return nil, &PersistenceError{Step: fmt.Sprintf("create order %d/%d", i+1, len(drafts)), Err: err}
		}
	}

	// --- Step 4: re-read the created orders and link them ---
	orders, err := o.store.ListOrdersByTransaction(ctx, txnID)
	if err != nil {
		return nil, &PersistenceError{Step: "read back orders", Err: err}
	}
	for _, ord := range orders {
		if _, err := o.store.CreateOrderTransaction(ctx, database.CreateOrderTransactionParams{
			OrderID:              ord.ID,
			PaymentTransactionID: txn.ID,
			Amount:               ord.TotalAmount,
		}); err != nil {
			return nil, &PersistenceError{Step: "link orders", Err: err}
		}
	}

	// --- Steps 5-6: gateway call + URL write-back ---
	summary := summaryFromDrafts(drafts)
	return o.invokeGateway(ctx, txnID, total, orders, summary)
}

// RetryPayment re-runs saga steps 5-6 for an existing transaction after
// a gateway failure. It never re-creates order rows.
func (o *Orchestrator) RetryPayment(ctx context.Context, transactionID string) (*SubmitResult, error) {
	txn, err := o.store.GetPaymentTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, &PersistenceError{Step: "read transaction", Err: err}
	}
	if txn.PaymentStatus != enum.PaymentStatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrTransactionNotPayable, txn.PaymentStatus)
	}

	orders, err := o.store.ListOrdersByTransaction(ctx, transactionID)
	if err != nil {
		return nil, &PersistenceError{Step: "read back orders", Err: err}
	}
	if len(orders) == 0 {
		// Step 3 never completed for this id; the row is an accepted
		// TTL-bounded leak, not retryable.
		return nil, ErrNoOrdersInTransaction
	}

	summary, err := o.summaryFromOrders(ctx, txn.GuardianID, orders)
	if err != nil {
		return nil, &PersistenceError{Step: "rebuild order summary", Err: err}
	}
	return o.invokeGateway(ctx, transactionID, numericToDecimal(txn.TotalAmount), orders, summary)
}

// invokeGateway performs steps 5 and 6. Both failure modes surface as
// *GatewayError: the rows exist and the retry path is keyed by the
// transaction id.
func (o *Orchestrator) invokeGateway(ctx context.Context, transactionID string, total decimal.Decimal, orders []database.Order, summary []gateway.OrderSummaryItem) (*SubmitResult, error) {
	resp, err := o.gw.CreatePayment(ctx, gateway.CreatePaymentRequest{
		TransactionID: transactionID,
		TotalAmount:   total.InexactFloat64(),
		OrderSummary:  summary,
	})
	if err != nil {
		// A definitive rejection closes the transaction: no later retry
		// can make the gateway accept it. Transient faults leave it
		// PENDING for the retry path.
		var rejection *gateway.RejectionError
		if errors.As(err, &rejection) {
			if markErr := o.store.MarkPaymentTransactionFailed(ctx, transactionID); markErr != nil {
				log.Printf("ERROR: mark transaction %s failed: %v", transactionID, markErr)
			}
		}
		return nil, &GatewayError{Step: "create payment", TransactionID: transactionID, Err: err}
	}

	txn, err := o.store.SetPaymentTransactionGateway(ctx, database.SetPaymentTransactionGatewayParams{
		TransactionID:        transactionID,
		PaymentURL:           pgtype.Text{String: resp.ProcessURL, Valid: true},
		GatewayTransactionID: pgtype.Text{String: resp.RequestID, Valid: true},
	})
	if err != nil {
		// The gateway session exists but the URL write-back failed;
		// reconciliation can re-query it, re-submission must not.
		return nil, &GatewayError{Step: "write back payment url", TransactionID: transactionID, Err: err}
	}

	return &SubmitResult{
		TransactionID:        transactionID,
		PaymentURL:           resp.ProcessURL,
		GatewayTransactionID: resp.RequestID,
		Total:                numericToDecimal(txn.TotalAmount),
		Orders:               orders,
	}, nil
}

func summaryFromDrafts(drafts []OrderLineDraft) []gateway.OrderSummaryItem {
	items := make([]gateway.OrderSummaryItem, len(drafts))
	for i, d := range drafts {
		items[i] = gateway.OrderSummaryItem{
			StudentID:   d.StudentID.String(),
			StudentName: d.StudentName,
			Date:        d.DeliveryDate.Format(dateLayout),
			MenuType:    d.Slot,
			MenuItem:    d.MenuItemName,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice.InexactFloat64(),
			TotalPrice:  d.TotalAmount.InexactFloat64(),
		}
	}
	return items
}

// summaryFromOrders rebuilds the gateway order summary from persisted
// rows (retry path; the original drafts are gone).
func (o *Orchestrator) summaryFromOrders(ctx context.Context, guardianID uuid.UUID, orders []database.Order) ([]gateway.OrderSummaryItem, error) {
	items := make([]gateway.OrderSummaryItem, len(orders))
	for i, ord := range orders {
		student, err := o.store.GetStudentForGuardian(ctx, database.GetStudentForGuardianParams{
			ID:         ord.StudentID,
			GuardianID: guardianID,
		})
		if err != nil {
			return nil, fmt.Errorf("student %s: %w", ord.StudentID, err)
		}
		item, err := o.store.GetMenuItem(ctx, ord.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("menu item %s: %w", ord.MenuItemID, err)
		}
		items[i] = gateway.OrderSummaryItem{
			StudentID:   ord.StudentID.String(),
			StudentName: student.Name,
			Date:        ord.DeliveryDate.Time.Format(dateLayout),
			MenuType:    item.Category,
			MenuItem:    item.Name,
			Quantity:    ord.Quantity,
			UnitPrice:   numericToDecimal(ord.UnitPrice).InexactFloat64(),
			TotalPrice:  numericToDecimal(ord.TotalAmount).InexactFloat64(),
		}
	}
	return items, nil
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
