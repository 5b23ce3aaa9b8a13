package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/casino-escolar/api/internal/catalog"
	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/middleware"
	"github.com/casino-escolar/api/internal/selection"
	"github.com/casino-escolar/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// OrderSubmitter defines the saga methods needed by order handlers.
// Satisfied by *service.Orchestrator; narrow interface for testability.
type OrderSubmitter interface {
	Submit(ctx context.Context, guardianID uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error)
}

// OrderStore defines the database methods needed by order handlers.
// Satisfied by *database.Queries.
type OrderStore interface {
	ListStudentsByGuardian(ctx context.Context, guardianID uuid.UUID) ([]database.Student, error)
	ListMenuItemsByDateRange(ctx context.Context, arg database.ListMenuItemsByDateRangeParams) ([]database.MenuItem, error)
	ListOrdersByGuardian(ctx context.Context, guardianID uuid.UUID) ([]database.Order, error)
	CancelOrderIfPending(ctx context.Context, arg database.CancelOrderIfPendingParams) (database.Order, error)
}

// OrderHandler handles order submission and listing.
type OrderHandler struct {
	svc   OrderSubmitter
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderSubmitter, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
	r.Get("/", h.List)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type submitOrderRequest struct {
	Selections []selectionRequest `json:"selections"`
}

type selectionRequest struct {
	StudentID  string `json:"student_id"`
	Date       string `json:"date"`
	MealSlot   string `json:"meal_slot"`
	MenuItemID string `json:"menu_item_id"`
}

type submitOrderResponse struct {
	TransactionID        string          `json:"transaction_id"`
	PaymentURL           string          `json:"payment_url"`
	GatewayTransactionID string          `json:"gateway_transaction_id"`
	TotalAmount          string          `json:"total_amount"`
	Currency             string          `json:"currency"`
	Orders               []orderResponse `json:"orders"`
}

type orderResponse struct {
	ID            uuid.UUID `json:"id"`
	StudentID     uuid.UUID `json:"student_id"`
	MenuItemID    uuid.UUID `json:"menu_item_id"`
	DeliveryDate  string    `json:"delivery_date"`
	Quantity      int32     `json:"quantity"`
	UnitPrice     string    `json:"unit_price"`
	TotalAmount   string    `json:"total_amount"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TransactionID *string   `json:"transaction_id"`
}

// --- Handlers ---

// Submit handles POST /orders: validates the selection, builds the
// batch, cross-checks the two independently computed totals, then runs
// the payment saga. The three failure classes keep distinct responses
// because the guardian's recovery action differs for each.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Selections) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no selections: pick at least one menu option"})
		return
	}

	// Rebuild the client-held selection store from the payload.
	sel := selection.New()
	var minDate, maxDate time.Time
	for i, s := range req.Selections {
		studentID, err := uuid.Parse(s.StudentID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid student_id in selection " + strconv.Itoa(i)})
			return
		}
		itemID, err := uuid.Parse(s.MenuItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_item_id in selection " + strconv.Itoa(i)})
			return
		}
		day, err := time.Parse(dateLayout, s.Date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date in selection " + strconv.Itoa(i)})
			return
		}
		if !enum.IsValidMealSlot(s.MealSlot) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid meal_slot in selection " + strconv.Itoa(i)})
			return
		}
		sel.Select(studentID, s.Date, s.MealSlot, itemID)
		if minDate.IsZero() || day.Before(minDate) {
			minDate = day
		}
		if day.After(maxDate) {
			maxDate = day
		}
	}

	// Students and their pricing tiers come from the guardian's record,
	// never from the payload.
	dbStudents, err := h.store.ListStudentsByGuardian(r.Context(), claims.GuardianID)
	if err != nil {
		log.Printf("ERROR: list students for submit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	students := make([]service.StudentInfo, len(dbStudents))
	for i, s := range dbStudents {
		students[i] = service.StudentInfo{ID: s.ID, Name: s.Name, UserType: s.UserType}
	}

	// Load the catalog window covering the selected dates.
	rows, err := h.store.ListMenuItemsByDateRange(r.Context(), database.ListMenuItemsByDateRangeParams{
		From: pgtype.Date{Time: minDate, Valid: true},
		To:   pgtype.Date{Time: maxDate, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: load menu window for submit: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	window := catalog.FromRows(rows)

	batch, err := service.BuildBatch(sel, students, window)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no selections: pick at least one menu option"})
		case errors.Is(err, service.ErrUnknownStudent):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "selection references a student outside your account"})
		case errors.Is(err, catalog.ErrItemNotFound):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "a selected menu option is no longer available: " + err.Error()})
		default:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
		return
	}

	// The summary view recomputes the total from the same selection.
	// Both paths must agree; a disagreement means a pricing bug and the
	// submission must not proceed.
	summary := service.SummarizeSelection(sel, students, window)
	if !batch.Total.Equal(summary.Total) {
		log.Printf("ERROR: total mismatch for guardian %s: batch %s vs summary %s",
			claims.GuardianID, batch.Total, summary.Total)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order totals did not agree; nothing was saved"})
		return
	}

	result, err := h.svc.Submit(r.Context(), claims.GuardianID, batch.Lines, batch.Total)
	if err != nil {
		var pe *service.PersistenceError
		var ge *service.GatewayError
		switch {
		case errors.Is(err, service.ErrDuplicateOrder):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.As(err, &ge):
			// The order rows exist; the retry is keyed by the existing
			// transaction id and must not create a new one.
			log.Printf("ERROR: gateway failure on submit: %v", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":          "order saved but payment setup failed",
				"transaction_id": ge.TransactionID,
				"retry":          "/payments/" + ge.TransactionID + "/retry",
			})
		case errors.As(err, &pe):
			// Nothing usable was written; a fresh submission gets a
			// fresh transaction id.
			log.Printf("ERROR: persistence failure on submit: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order could not be saved; please retry your submission"})
		default:
			log.Printf("ERROR: submit: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	orders := make([]orderResponse, len(result.Orders))
	for i, o := range result.Orders {
		orders[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusCreated, submitOrderResponse{
		TransactionID:        result.TransactionID,
		PaymentURL:           result.PaymentURL,
		GatewayTransactionID: result.GatewayTransactionID,
		TotalAmount:          result.Total.StringFixed(2),
		Currency:             enum.CurrencyCLP,
		Orders:               orders,
	})
}

// List handles GET /orders: the guardian's order history, newest first.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	dbOrders, err := h.store.ListOrdersByGuardian(r.Context(), claims.GuardianID)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(dbOrders))
	for i, o := range dbOrders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles DELETE /orders/{id}. Only orders whose payment is
// still pending can be cancelled.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.CancelOrderIfPending(r.Context(), database.CancelOrderIfPendingParams{
		ID:         orderID,
		GuardianID: claims.GuardianID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "only pending unpaid orders can be cancelled"})
			return
		}
		log.Printf("ERROR: cancel order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}

// --- Helpers ---

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		StudentID:     o.StudentID,
		MenuItemID:    o.MenuItemID,
		DeliveryDate:  o.DeliveryDate.Time.Format(dateLayout),
		Quantity:      o.Quantity,
		UnitPrice:     numericString(o.UnitPrice),
		TotalAmount:   numericString(o.TotalAmount),
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TransactionID: textOrNil(o.TransactionID),
	}
}

