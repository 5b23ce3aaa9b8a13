package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/casino-escolar/api/internal/catalog"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/selection"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Errors returned by the batch builder.
var (
	ErrEmptyOrder     = errors.New("no selections to order")
	ErrUnknownStudent = errors.New("selection references an unknown student")
	ErrInvalidDate    = errors.New("invalid selection date")
)

// StudentInfo is the slice of guardian data the builder needs: identity
// plus the pricing tier.
type StudentInfo struct {
	ID       uuid.UUID
	Name     string
	UserType string
}

// OrderLineDraft is one order row ready to persist: one menu item for
// one student on one date. Quantity is always 1 per slot.
type OrderLineDraft struct {
	StudentID    uuid.UUID
	StudentName  string
	MenuItemID   uuid.UUID
	MenuItemName string
	MenuCode     string
	Slot         string
	DeliveryDate time.Time
	Quantity     int32
	UnitPrice    decimal.Decimal
	TotalAmount  decimal.Decimal
}

// Batch is the expanded selection with its build-time total.
type Batch struct {
	Lines []OrderLineDraft
	Total decimal.Decimal
}

// SummaryLine is one display row. Missing marks a pick whose menu item
// has left the catalog; its price shows as 0 rather than aborting the
// whole summary.
type SummaryLine struct {
	StudentID   uuid.UUID
	StudentName string
	Date        time.Time
	Slot        string
	MenuItemID  uuid.UUID
	MenuItem    string
	UnitPrice   decimal.Decimal
	Missing     bool
}

// Summary is the display-time view of the same selection, with its own
// independently recomputed total.
type Summary struct {
	Lines []SummaryLine
	Total decimal.Decimal
}

// slotOrder fixes iteration order within a date: lunch before snack.
var slotOrder = []string{enum.MealSlotAlmuerzo, enum.MealSlotColacion}

// BuildBatch expands the selection into order line drafts and
// accumulates the running total. Strict: a pick referencing a missing
// menu item fails the build, because persisting it would record a wrong
// price. Sundays carry no service and are skipped.
func BuildBatch(sel selection.Store, students []StudentInfo, window *catalog.Window) (*Batch, error) {
	if sel.IsEmpty() {
		return nil, ErrEmptyOrder
	}

	byID := make(map[uuid.UUID]StudentInfo, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}
	for studentID := range sel {
		if _, ok := byID[studentID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
		}
	}

	batch := &Batch{Total: decimal.Zero}
	for _, student := range students {
		picks := sel.ForStudent(student.ID)
		if len(picks) == 0 {
			continue
		}
		for _, date := range sel.Dates(student.ID) {
			day, err := time.Parse(dateLayout, date)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
			}
			if day.Weekday() == time.Sunday {
				continue
			}
			bySlot := picks[date]
			for _, slot := range slotOrder {
				itemID, ok := bySlot[slot]
				if !ok {
					continue
				}
				unitPrice, err := window.ResolvePrice(itemID, student.UserType)
				if err != nil {
					return nil, fmt.Errorf("student %s, %s %s: %w", student.Name, date, slot, err)
				}
				item, _ := window.Lookup(itemID)

				line := OrderLineDraft{
					StudentID:    student.ID,
					StudentName:  student.Name,
					MenuItemID:   itemID,
					MenuItemName: item.Name,
					MenuCode:     item.Code,
					Slot:         slot,
					DeliveryDate: day,
					Quantity:     1,
					UnitPrice:    unitPrice,
					TotalAmount:  unitPrice,
				}
				batch.Lines = append(batch.Lines, line)
				batch.Total = batch.Total.Add(line.TotalAmount)
			}
		}
	}

	// Selections that only held Sundays collapse to nothing; callers
	// must see that explicitly, never an empty line list downstream.
	if len(batch.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	return batch, nil
}

// SummarizeSelection recomputes the total from the same selection for
// display. Lenient: missing items degrade to a flagged zero-price line
// so the summary always renders. The summary total and the batch total
// must agree whenever the catalog is consistent; callers cross-check.
func SummarizeSelection(sel selection.Store, students []StudentInfo, window *catalog.Window) *Summary {
	sum := &Summary{Total: decimal.Zero}
	for _, student := range students {
		picks := sel.ForStudent(student.ID)
		if len(picks) == 0 {
			continue
		}
		for _, date := range sel.Dates(student.ID) {
			day, err := time.Parse(dateLayout, date)
			if err != nil || day.Weekday() == time.Sunday {
				continue
			}
			for _, slot := range slotOrder {
				itemID, ok := picks[date][slot]
				if !ok {
					continue
				}
				line := SummaryLine{
					StudentID:   student.ID,
					StudentName: student.Name,
					Date:        day,
					Slot:        slot,
					MenuItemID:  itemID,
				}
				if item, found := window.Lookup(itemID); found {
					price, _ := window.ResolvePrice(itemID, student.UserType)
					line.MenuItem = item.Name
					line.UnitPrice = price
					sum.Total = sum.Total.Add(price)
				} else {
					line.MenuItem = "(opción no disponible)"
					line.UnitPrice = decimal.Zero
					line.Missing = true
				}
				sum.Lines = append(sum.Lines, line)
			}
		}
	}
	return sum
}
