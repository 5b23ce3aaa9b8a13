package database

import (
	"context"

	"github.com/google/uuid"
)

const getGuardianByEmail = `
SELECT id, email, full_name, hashed_password, phone, role, is_active, created_at, updated_at
FROM guardians
WHERE email = $1 AND is_active = true
`

func (q *Queries) GetGuardianByEmail(ctx context.Context, email string) (Guardian, error) {
	row := q.db.QueryRow(ctx, getGuardianByEmail, email)
	var g Guardian
	err := row.Scan(
		&g.ID,
		&g.Email,
		&g.FullName,
		&g.HashedPassword,
		&g.Phone,
		&g.Role,
		&g.IsActive,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	return g, err
}

const getGuardianByID = `
SELECT id, email, full_name, hashed_password, phone, role, is_active, created_at, updated_at
FROM guardians
WHERE id = $1
`

func (q *Queries) GetGuardianByID(ctx context.Context, id uuid.UUID) (Guardian, error) {
	row := q.db.QueryRow(ctx, getGuardianByID, id)
	var g Guardian
	err := row.Scan(
		&g.ID,
		&g.Email,
		&g.FullName,
		&g.HashedPassword,
		&g.Phone,
		&g.Role,
		&g.IsActive,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	return g, err
}

const listStudentsByGuardian = `
SELECT id, guardian_id, name, grade, section, user_type, is_active, created_at
FROM students
WHERE guardian_id = $1 AND is_active = true
ORDER BY name
`

func (q *Queries) ListStudentsByGuardian(ctx context.Context, guardianID uuid.UUID) ([]Student, error) {
	rows, err := q.db.Query(ctx, listStudentsByGuardian, guardianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(
			&s.ID,
			&s.GuardianID,
			&s.Name,
			&s.Grade,
			&s.Section,
			&s.UserType,
			&s.IsActive,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const getStudentForGuardian = `
SELECT id, guardian_id, name, grade, section, user_type, is_active, created_at
FROM students
WHERE id = $1 AND guardian_id = $2 AND is_active = true
`

type GetStudentForGuardianParams struct {
	ID         uuid.UUID
	GuardianID uuid.UUID
}

func (q *Queries) GetStudentForGuardian(ctx context.Context, arg GetStudentForGuardianParams) (Student, error) {
	row := q.db.QueryRow(ctx, getStudentForGuardian, arg.ID, arg.GuardianID)
	var s Student
	err := row.Scan(
		&s.ID,
		&s.GuardianID,
		&s.Name,
		&s.Grade,
		&s.Section,
		&s.UserType,
		&s.IsActive,
		&s.CreatedAt,
	)
	return s, err
}
