package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/casino-escolar/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries.
type MenuStore interface {
	ListMenuItemsByDateRange(ctx context.Context, arg database.ListMenuItemsByDateRangeParams) ([]database.MenuItem, error)
}

// MenuHandler serves the weekly menu catalog.
type MenuHandler struct {
	store MenuStore
	now   func() time.Time
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store, now: time.Now}
}

// RegisterRoutes registers menu endpoints on the given Chi router.
// Expected to be mounted at /menu.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type menuItemResponse struct {
	ID            uuid.UUID `json:"id"`
	Code          *string   `json:"code"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	Category      string    `json:"category"`
	AvailableDate string    `json:"available_date"`
	PriceStudent  string    `json:"price_student"`
	PriceStaff    string    `json:"price_staff"`
}

// List handles GET /menu?from=YYYY-MM-DD&to=YYYY-MM-DD. Without
// params it returns the current week, Monday through Saturday.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := h.store.ListMenuItemsByDateRange(r.Context(), database.ListMenuItemsByDateRangeParams{
		From: pgtype.Date{Time: from, Valid: true},
		To:   pgtype.Date{Time: to, Valid: true},
	})
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]menuItemResponse, len(rows))
	for i, m := range rows {
		resp[i] = menuItemResponse{
			ID:            m.ID,
			Code:          textOrNil(m.Code),
			Name:          m.Name,
			Description:   textOrNil(m.Description),
			Category:      m.Category,
			AvailableDate: m.AvailableDate.Time.Format(dateLayout),
			PriceStudent:  numericString(m.PriceStudent),
			PriceStaff:    numericString(m.PriceStaff),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MenuHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	if fromStr == "" && toStr == "" {
		// Monday of the current week through Saturday. Sunday has no
		// meal service so the default window never includes one.
		now := h.now()
		offset := int(now.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		monday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
		return monday, monday.AddDate(0, 0, 5), nil
	}

	from, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidRange
	}
	to, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidRange
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errInvalidRange
	}
	return from, to, nil
}

var errInvalidRange = errors.New("invalid date range: expected from and to as YYYY-MM-DD")
