package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/gateway"
	"github.com/casino-escolar/api/internal/middleware"
	"github.com/casino-escolar/api/internal/service"
	"github.com/go-chi/chi/v5"
)

// PaymentConfirmer defines the confirmation methods needed by payment
// handlers. Satisfied by *service.ConfirmationHandler.
type PaymentConfirmer interface {
	Status(ctx context.Context, transactionID string) (database.PaymentTransaction, error)
	ConfirmManual(ctx context.Context, transactionID, confirmationCode string) (*service.ConfirmResult, error)
}

// PaymentRetrier defines the retry method needed by payment handlers.
// Satisfied by *service.Orchestrator.
type PaymentRetrier interface {
	RetryPayment(ctx context.Context, transactionID string) (*service.SubmitResult, error)
}

// TransferConfig carries the bank transfer provider settings.
type TransferConfig struct {
	Endpoint string
	Email    string
	Secret   string
}

// PaymentHandler handles payment status, confirmation and retries.
type PaymentHandler struct {
	confirmer PaymentConfirmer
	retrier   PaymentRetrier
	transfer  TransferConfig
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(confirmer PaymentConfirmer, retrier PaymentRetrier, transfer TransferConfig) *PaymentHandler {
	return &PaymentHandler{confirmer: confirmer, retrier: retrier, transfer: transfer}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /payments.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{txid}", h.Status)
	r.Post("/{txid}/confirm", h.Confirm)
	r.Post("/{txid}/retry", h.Retry)
	r.Get("/{txid}/transfer-form", h.TransferForm)
}

type paymentStatusResponse struct {
	TransactionID        string  `json:"transaction_id"`
	PaymentStatus        string  `json:"payment_status"`
	PaymentMethod        *string `json:"payment_method"`
	TotalAmount          string  `json:"total_amount"`
	Currency             string  `json:"currency"`
	PaymentURL           *string `json:"payment_url"`
	GatewayTransactionID *string `json:"gateway_transaction_id"`
	ConfirmationCode     *string `json:"confirmation_code"`
	ExpiresAt            *string `json:"expires_at"`
	PaidAt               *string `json:"paid_at"`
}

type confirmPaymentRequest struct {
	ConfirmationCode string `json:"confirmation_code"`
}

type confirmPaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentStatus string `json:"payment_status"`
	OrdersUpdated int64  `json:"orders_updated"`
	AlreadyPaid   bool   `json:"already_paid"`
}

// loadOwned fetches the transaction and enforces that it belongs to
// the authenticated guardian. A foreign transaction id reads as not
// found so the endpoint does not leak which ids exist.
func (h *PaymentHandler) loadOwned(w http.ResponseWriter, r *http.Request) (database.PaymentTransaction, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return database.PaymentTransaction{}, false
	}

	txid := chi.URLParam(r, "txid")
	txn, err := h.confirmer.Status(r.Context(), txid)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
			return database.PaymentTransaction{}, false
		}
		log.Printf("ERROR: get payment transaction %s: %v", txid, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.PaymentTransaction{}, false
	}
	if txn.GuardianID != claims.GuardianID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
		return database.PaymentTransaction{}, false
	}
	return txn, true
}

// Status handles GET /payments/{txid}. This is the polling endpoint
// the payment-pending page uses alongside the websocket push.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, txnToResponse(txn))
}

// Confirm handles POST /payments/{txid}/confirm: the guardian asserts
// an out-of-band payment (bank transfer) completed. Confirming an
// already-paid transaction is a no-op that reports success.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.confirmer.ConfirmManual(r.Context(), txn.TransactionID, req.ConfirmationCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionTerminal):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "transaction is no longer payable"})
		case errors.Is(err, service.ErrReconciliationMismatch):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "payment amounts did not reconcile; flagged for manual review"})
		default:
			log.Printf("ERROR: confirm payment %s: %v", txn.TransactionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, confirmPaymentResponse{
		TransactionID: result.Transaction.TransactionID,
		PaymentStatus: result.Transaction.PaymentStatus,
		OrdersUpdated: result.OrdersUpdated,
		AlreadyPaid:   result.AlreadyPaid,
	})
}

// Retry handles POST /payments/{txid}/retry: re-runs the gateway
// session creation for a pending transaction whose first attempt
// failed. Order rows are reused, never re-created.
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	result, err := h.retrier.RetryPayment(r.Context(), txn.TransactionID)
	if err != nil {
		var ge *service.GatewayError
		switch {
		case errors.Is(err, service.ErrTransactionNotPayable):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "transaction is no longer payable"})
		case errors.Is(err, service.ErrNoOrdersInTransaction):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "transaction has no orders attached"})
		case errors.As(err, &ge):
			log.Printf("ERROR: gateway failure on retry %s: %v", txn.TransactionID, err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":          "payment setup failed again",
				"transaction_id": txn.TransactionID,
				"retry":          "/payments/" + txn.TransactionID + "/retry",
			})
		default:
			log.Printf("ERROR: retry payment %s: %v", txn.TransactionID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"transaction_id":         result.TransactionID,
		"payment_url":            result.PaymentURL,
		"gateway_transaction_id": result.GatewayTransactionID,
	})
}

// TransferForm handles GET /payments/{txid}/transfer-form: the signed
// field set the frontend posts to the bank transfer provider.
func (h *PaymentHandler) TransferForm(w http.ResponseWriter, r *http.Request) {
	txn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if txn.PaymentStatus != enum.PaymentStatusPending {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "transaction is no longer payable"})
		return
	}

	form := gateway.BuildTransferForm(
		h.transfer.Endpoint,
		h.transfer.Email,
		h.transfer.Secret,
		txn.TransactionID,
		numericToDecimal(txn.TotalAmount),
	)
	writeJSON(w, http.StatusOK, form)
}

func txnToResponse(txn database.PaymentTransaction) paymentStatusResponse {
	resp := paymentStatusResponse{
		TransactionID:        txn.TransactionID,
		PaymentStatus:        txn.PaymentStatus,
		PaymentMethod:        textOrNil(txn.PaymentMethod),
		TotalAmount:          numericString(txn.TotalAmount),
		Currency:             txn.Currency,
		PaymentURL:           textOrNil(txn.PaymentURL),
		GatewayTransactionID: textOrNil(txn.GatewayTransactionID),
		ConfirmationCode:     textOrNil(txn.ConfirmationCode),
	}
	if txn.ExpiresAt.Valid {
		s := txn.ExpiresAt.Time.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	if txn.PaidAt.Valid {
		s := txn.PaidAt.Time.UTC().Format(time.RFC3339)
		resp.PaidAt = &s
	}
	return resp
}
