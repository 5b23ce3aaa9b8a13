package catalog

import (
	"errors"
	"time"

	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ErrItemNotFound is returned when a selection references a menu item
// outside the loaded catalog window. Resolution must never fall back to
// a zero price: that would silently under-charge.
var ErrItemNotFound = errors.New("menu item not found in catalog window")

// Item is a menu item with prices converted to decimal.
type Item struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Description   string
	Category      string
	AvailableDate time.Time
	PriceStudent  decimal.Decimal
	PriceStaff    decimal.Decimal
	Active        bool
}

// Window is the catalog slice loaded for one ordering session, keyed by
// menu item id. Immutable once built.
type Window struct {
	items map[uuid.UUID]Item
}

// NewWindow builds a Window from already-converted items.
func NewWindow(items []Item) *Window {
	w := &Window{items: make(map[uuid.UUID]Item, len(items))}
	for _, it := range items {
		w.items[it.ID] = it
	}
	return w
}

// FromRows converts database rows into a Window.
func FromRows(rows []database.MenuItem) *Window {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{
			ID:            r.ID,
			Code:          r.Code.String,
			Name:          r.Name,
			Description:   r.Description.String,
			Category:      r.Category,
			AvailableDate: r.AvailableDate.Time,
			PriceStudent:  numericToDecimal(r.PriceStudent),
			PriceStaff:    numericToDecimal(r.PriceStaff),
			Active:        r.IsActive,
		})
	}
	return NewWindow(items)
}

// Lookup returns the item for id, if present.
func (w *Window) Lookup(id uuid.UUID) (Item, bool) {
	it, ok := w.items[id]
	return it, ok
}

// ResolvePrice returns the unit price for the item under the given
// pricing tier: price_staff for FUNCIONARIO, price_student otherwise.
func (w *Window) ResolvePrice(id uuid.UUID, userType string) (decimal.Decimal, error) {
	it, ok := w.items[id]
	if !ok {
		return decimal.Zero, ErrItemNotFound
	}
	if userType == enum.UserTypeStaff {
		return it.PriceStaff, nil
	}
	return it.PriceStudent, nil
}

// Len reports how many items the window holds.
func (w *Window) Len() int {
	return len(w.items)
}

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
