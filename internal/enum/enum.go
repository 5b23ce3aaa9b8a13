package enum

// --- State machines (CHECK constrained in DB) ---

// Order line lifecycle. A line's payment status only reaches PAID through
// its owning payment transaction.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
)

// Payment transaction status. PENDING is the only state with outgoing
// transitions; PAID, EXPIRED and FAILED are terminal.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusExpired = "EXPIRED"
	PaymentStatusFailed  = "FAILED"
)

// --- Reference data ---

const (
	MealSlotAlmuerzo = "ALMUERZO"
	MealSlotColacion = "COLACION"
)

// User type decides which menu price applies.
const (
	UserTypeStudent = "ESTUDIANTE"
	UserTypeStaff   = "FUNCIONARIO"
)

const (
	GuardianRoleUser  = "USER"
	GuardianRoleAdmin = "ADMIN"
)

// Payment providers the orchestrator knows about.
const (
	PaymentMethodGateway  = "GATEWAY"
	PaymentMethodTransfer = "TRANSFER"
)

const CurrencyCLP = "CLP"

// IsTerminalPaymentStatus reports whether a payment status has no
// outgoing transitions.
func IsTerminalPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusExpired, PaymentStatusFailed:
		return true
	}
	return false
}

// IsValidMealSlot reports whether s is a known meal slot.
func IsValidMealSlot(s string) bool {
	switch s {
	case MealSlotAlmuerzo, MealSlotColacion:
		return true
	}
	return false
}

// IsValidUserType reports whether s is a known pricing tier.
func IsValidUserType(s string) bool {
	switch s {
	case UserTypeStudent, UserTypeStaff:
		return true
	}
	return false
}
