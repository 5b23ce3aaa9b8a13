package database

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Guardian is the account holder placing orders for one or more students.
type Guardian struct {
	ID             uuid.UUID
	Email          string
	FullName       string
	HashedPassword string
	Phone          pgtype.Text
	Role           string
	IsActive       bool
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

// Student belongs to a guardian and carries the pricing tier
// (ESTUDIANTE or FUNCIONARIO).
type Student struct {
	ID         uuid.UUID
	GuardianID uuid.UUID
	Name       string
	Grade      string
	Section    string
	UserType   string
	IsActive   bool
	CreatedAt  pgtype.Timestamptz
}

// MenuItem is read-only reference data maintained by the catalog admin.
type MenuItem struct {
	ID            uuid.UUID
	Code          pgtype.Text
	Name          string
	Description   pgtype.Text
	Category      string
	PriceStudent  pgtype.Numeric
	PriceStaff    pgtype.Numeric
	AvailableDate pgtype.Date
	IsActive      bool
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

// Order is one purchased menu item for one student on one delivery date.
type Order struct {
	ID            uuid.UUID
	GuardianID    uuid.UUID
	StudentID     uuid.UUID
	MenuItemID    uuid.UUID
	DeliveryDate  pgtype.Date
	Quantity      int32
	UnitPrice     pgtype.Numeric
	TotalAmount   pgtype.Numeric
	Status        string
	PaymentStatus string
	TransactionID pgtype.Text
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

// PaymentTransaction aggregates all orders submitted together.
// TransactionID is the application-generated human-inspectable key
// ("tx-<millis>-<suffix>"); ID is the row key.
type PaymentTransaction struct {
	ID                   uuid.UUID
	TransactionID        string
	GuardianID           uuid.UUID
	Currency             string
	TotalAmount          pgtype.Numeric
	PaymentMethod        pgtype.Text
	PaymentStatus        string
	ConfirmationCode     pgtype.Text
	GatewayTransactionID pgtype.Text
	PaymentURL           pgtype.Text
	ExpiresAt            pgtype.Timestamptz
	PaidAt               pgtype.Timestamptz
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}

// OrderTransaction links an order to its payment transaction. Amount is
// denormalized from the order so reconciliation can sum links without
// re-reading orders.
type OrderTransaction struct {
	ID                   uuid.UUID
	OrderID              uuid.UUID
	PaymentTransactionID uuid.UUID
	Amount               pgtype.Numeric
	CreatedAt            pgtype.Timestamptz
}
