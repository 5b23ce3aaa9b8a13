package selection

import (
	"sort"

	"github.com/google/uuid"
)

// Store holds one ordering session's picks: student -> ISO date
// (2006-01-02) -> meal slot -> menu item id. It lives only for the
// duration of a submission; nothing here is persisted.
type Store map[uuid.UUID]map[string]map[string]uuid.UUID

// New returns an empty Store.
func New() Store {
	return make(Store)
}

// Select records a pick, replacing any previous pick for the same
// student/date/slot.
func (s Store) Select(studentID uuid.UUID, date, slot string, itemID uuid.UUID) {
	byDate, ok := s[studentID]
	if !ok {
		byDate = make(map[string]map[string]uuid.UUID)
		s[studentID] = byDate
	}
	bySlot, ok := byDate[date]
	if !ok {
		bySlot = make(map[string]uuid.UUID)
		byDate[date] = bySlot
	}
	bySlot[slot] = itemID
}

// Deselect removes a single pick, cleaning up empty maps.
func (s Store) Deselect(studentID uuid.UUID, date, slot string) {
	byDate, ok := s[studentID]
	if !ok {
		return
	}
	bySlot, ok := byDate[date]
	if !ok {
		return
	}
	delete(bySlot, slot)
	if len(bySlot) == 0 {
		delete(byDate, date)
	}
	if len(byDate) == 0 {
		delete(s, studentID)
	}
}

// ClearStudent drops every pick for one student (student de-selected in
// the UI).
func (s Store) ClearStudent(studentID uuid.UUID) {
	delete(s, studentID)
}

// Clear drops everything (called after submission).
func (s Store) Clear() {
	for k := range s {
		delete(s, k)
	}
}

// IsEmpty reports whether no student has any pick.
func (s Store) IsEmpty() bool {
	for _, byDate := range s {
		for _, bySlot := range byDate {
			if len(bySlot) > 0 {
				return false
			}
		}
	}
	return true
}

// ForStudent returns the picks for one student (nil when none).
func (s Store) ForStudent(studentID uuid.UUID) map[string]map[string]uuid.UUID {
	return s[studentID]
}

// Dates returns the dates a student has picks for, sorted ascending.
// ISO dates sort correctly as strings.
func (s Store) Dates(studentID uuid.UUID) []string {
	byDate := s[studentID]
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
