package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listMenuItemsByDateRange = `
SELECT id, code, name, description, category, price_student, price_staff,
       available_date, is_active, created_at, updated_at
FROM menu_items
WHERE available_date >= $1 AND available_date <= $2 AND is_active = true
ORDER BY available_date, category, code
`

type ListMenuItemsByDateRangeParams struct {
	From pgtype.Date
	To   pgtype.Date
}

func (q *Queries) ListMenuItemsByDateRange(ctx context.Context, arg ListMenuItemsByDateRangeParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItemsByDateRange, arg.From, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(
			&m.ID,
			&m.Code,
			&m.Name,
			&m.Description,
			&m.Category,
			&m.PriceStudent,
			&m.PriceStaff,
			&m.AvailableDate,
			&m.IsActive,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const getMenuItem = `
SELECT id, code, name, description, category, price_student, price_staff,
       available_date, is_active, created_at, updated_at
FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var m MenuItem
	err := row.Scan(
		&m.ID,
		&m.Code,
		&m.Name,
		&m.Description,
		&m.Category,
		&m.PriceStudent,
		&m.PriceStaff,
		&m.AvailableDate,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}
