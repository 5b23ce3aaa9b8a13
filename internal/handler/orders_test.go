package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casino-escolar/api/internal/auth"
	"github.com/casino-escolar/api/internal/database"
	"github.com/casino-escolar/api/internal/enum"
	"github.com/casino-escolar/api/internal/handler"
	"github.com/casino-escolar/api/internal/middleware"
	"github.com/casino-escolar/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const testJWTSecret = "test-secret-for-orders"

// --- Mock OrderSubmitter ---

type mockSubmitter struct {
	submitFn func(ctx context.Context, guardianID uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error)
	calls    int
}

func (m *mockSubmitter) Submit(ctx context.Context, guardianID uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error) {
	m.calls++
	return m.submitFn(ctx, guardianID, drafts, total)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	students map[uuid.UUID][]database.Student // keyed by guardian
	items    []database.MenuItem
	orders   map[uuid.UUID]database.Order
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		students: make(map[uuid.UUID][]database.Student),
		orders:   make(map[uuid.UUID]database.Order),
	}
}

func (m *mockOrderStore) ListStudentsByGuardian(_ context.Context, guardianID uuid.UUID) ([]database.Student, error) {
	return m.students[guardianID], nil
}

func (m *mockOrderStore) ListMenuItemsByDateRange(_ context.Context, arg database.ListMenuItemsByDateRangeParams) ([]database.MenuItem, error) {
	var result []database.MenuItem
	for _, it := range m.items {
		d := it.AvailableDate.Time
		if !d.Before(arg.From.Time) && !d.After(arg.To.Time) {
			result = append(result, it)
		}
	}
	return result, nil
}

func (m *mockOrderStore) ListOrdersByGuardian(_ context.Context, guardianID uuid.UUID) ([]database.Order, error) {
	var result []database.Order
	for _, o := range m.orders {
		if o.GuardianID == guardianID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *mockOrderStore) CancelOrderIfPending(_ context.Context, arg database.CancelOrderIfPendingParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.GuardianID != arg.GuardianID {
		return database.Order{}, pgx.ErrNoRows
	}
	if o.Status != enum.OrderStatusPending || o.PaymentStatus != enum.PaymentStatusPending {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusCancelled
	m.orders[arg.ID] = o
	return o, nil
}

// --- Helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func menuItemFixture(id uuid.UUID, category, date string) database.MenuItem {
	day, _ := time.Parse("2006-01-02", date)
	return database.MenuItem{
		ID:            id,
		Code:          pgtype.Text{String: "A1", Valid: true},
		Name:          "Almuerzo general",
		Category:      category,
		PriceStudent:  makeNumeric("3500.00"),
		PriceStaff:    makeNumeric("4200.00"),
		AvailableDate: pgtype.Date{Time: day, Valid: true},
		IsActive:      true,
	}
}

func setupOrderRouter(svc handler.OrderSubmitter, store *mockOrderStore) *chi.Mux {
	h := handler.NewOrderHandler(svc, store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/orders", h.RegisterRoutes)
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.GuardianID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func submitBody(studentID, itemID uuid.UUID, date string) map[string]interface{} {
	return map[string]interface{}{
		"selections": []map[string]string{
			{
				"student_id":   studentID.String(),
				"date":         date,
				"meal_slot":    enum.MealSlotAlmuerzo,
				"menu_item_id": itemID.String(),
			},
		},
	}
}

// --- Submit tests ---

func TestSubmitOrder_HappyPath(t *testing.T) {
	guardianID := uuid.New()
	studentID := uuid.New()
	itemID := uuid.New()

	store := newMockOrderStore()
	store.students[guardianID] = []database.Student{
		{ID: studentID, GuardianID: guardianID, Name: "Sofía Rojas", UserType: enum.UserTypeStudent, IsActive: true},
	}
	store.items = []database.MenuItem{menuItemFixture(itemID, enum.MealSlotAlmuerzo, "2026-03-02")}

	var gotTotal decimal.Decimal
	svc := &mockSubmitter{
		submitFn: func(ctx context.Context, gid uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error) {
			gotTotal = total
			return &service.SubmitResult{
				TransactionID:        "tx-1764590400000-abc1234",
				PaymentURL:           "https://checkout.example/session/abc",
				GatewayTransactionID: "req-123",
				Total:                total,
				Orders: []database.Order{{
					ID:            uuid.New(),
					GuardianID:    gid,
					StudentID:     studentID,
					MenuItemID:    itemID,
					DeliveryDate:  pgtype.Date{Time: drafts[0].DeliveryDate, Valid: true},
					Quantity:      1,
					UnitPrice:     makeNumeric("3500.00"),
					TotalAmount:   makeNumeric("3500.00"),
					Status:        enum.OrderStatusPending,
					PaymentStatus: enum.PaymentStatusPending,
					TransactionID: pgtype.Text{String: "tx-1764590400000-abc1234", Valid: true},
				}},
			}, nil
		},
	}
	router := setupOrderRouter(svc, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(studentID, itemID, "2026-03-02"), claims)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["transaction_id"] != "tx-1764590400000-abc1234" {
		t.Errorf("transaction_id: got %v", resp["transaction_id"])
	}
	if resp["payment_url"] != "https://checkout.example/session/abc" {
		t.Errorf("payment_url: got %v", resp["payment_url"])
	}
	if !gotTotal.Equal(decimal.NewFromInt(3500)) {
		t.Errorf("total passed to saga: got %s, want 3500", gotTotal)
	}
}

func TestSubmitOrder_EmptySelections(t *testing.T) {
	guardianID := uuid.New()
	store := newMockOrderStore()
	svc := &mockSubmitter{}
	router := setupOrderRouter(svc, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{"selections": []map[string]string{}}, claims)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	if svc.calls != 0 {
		t.Fatal("expected no saga call for empty selections")
	}
}

func TestSubmitOrder_InvalidStudentID(t *testing.T) {
	guardianID := uuid.New()
	router := setupOrderRouter(&mockSubmitter{}, newMockOrderStore())
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	body := map[string]interface{}{
		"selections": []map[string]string{
			{"student_id": "not-a-uuid", "date": "2026-03-02", "meal_slot": "ALMUERZO", "menu_item_id": uuid.New().String()},
		},
	}
	rr := doAuthRequest(t, router, "POST", "/orders", body, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSubmitOrder_InvalidMealSlot(t *testing.T) {
	guardianID := uuid.New()
	router := setupOrderRouter(&mockSubmitter{}, newMockOrderStore())
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	body := map[string]interface{}{
		"selections": []map[string]string{
			{"student_id": uuid.New().String(), "date": "2026-03-02", "meal_slot": "DESAYUNO", "menu_item_id": uuid.New().String()},
		},
	}
	rr := doAuthRequest(t, router, "POST", "/orders", body, claims)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSubmitOrder_StudentOutsideAccount(t *testing.T) {
	guardianID := uuid.New()
	store := newMockOrderStore()
	itemID := uuid.New()
	store.items = []database.MenuItem{menuItemFixture(itemID, enum.MealSlotAlmuerzo, "2026-03-02")}
	// No students registered for this guardian.
	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(uuid.New(), itemID, "2026-03-02"), claims)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestSubmitOrder_MissingMenuItem(t *testing.T) {
	guardianID := uuid.New()
	studentID := uuid.New()
	store := newMockOrderStore()
	store.students[guardianID] = []database.Student{
		{ID: studentID, GuardianID: guardianID, Name: "Sofía Rojas", UserType: enum.UserTypeStudent, IsActive: true},
	}
	// Catalog window is empty: the selected item no longer exists.
	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(studentID, uuid.New(), "2026-03-02"), claims)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestSubmitOrder_DuplicateConflict(t *testing.T) {
	guardianID := uuid.New()
	studentID := uuid.New()
	itemID := uuid.New()
	store := newMockOrderStore()
	store.students[guardianID] = []database.Student{
		{ID: studentID, GuardianID: guardianID, Name: "Sofía Rojas", UserType: enum.UserTypeStudent, IsActive: true},
	}
	store.items = []database.MenuItem{menuItemFixture(itemID, enum.MealSlotAlmuerzo, "2026-03-02")}

	svc := &mockSubmitter{
		submitFn: func(ctx context.Context, gid uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error) {
			return nil, service.ErrDuplicateOrder
		},
	}
	router := setupOrderRouter(svc, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(studentID, itemID, "2026-03-02"), claims)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSubmitOrder_GatewayFailureCarriesRetryHint(t *testing.T) {
	guardianID := uuid.New()
	studentID := uuid.New()
	itemID := uuid.New()
	store := newMockOrderStore()
	store.students[guardianID] = []database.Student{
		{ID: studentID, GuardianID: guardianID, Name: "Sofía Rojas", UserType: enum.UserTypeStudent, IsActive: true},
	}
	store.items = []database.MenuItem{menuItemFixture(itemID, enum.MealSlotAlmuerzo, "2026-03-02")}

	svc := &mockSubmitter{
		submitFn: func(ctx context.Context, gid uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error) {
			return nil, &service.GatewayError{
				Step:          "create payment",
				TransactionID: "tx-1764590400000-abc1234",
				Err:           context.DeadlineExceeded,
			}
		},
	}
	router := setupOrderRouter(svc, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(studentID, itemID, "2026-03-02"), claims)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	resp := decodeResponse(t, rr)
	if resp["transaction_id"] != "tx-1764590400000-abc1234" {
		t.Errorf("transaction_id: got %v", resp["transaction_id"])
	}
	if resp["retry"] != "/payments/tx-1764590400000-abc1234/retry" {
		t.Errorf("retry: got %v", resp["retry"])
	}
}

func TestSubmitOrder_PersistenceFailure(t *testing.T) {
	guardianID := uuid.New()
	studentID := uuid.New()
	itemID := uuid.New()
	store := newMockOrderStore()
	store.students[guardianID] = []database.Student{
		{ID: studentID, GuardianID: guardianID, Name: "Sofía Rojas", UserType: enum.UserTypeStudent, IsActive: true},
	}
	store.items = []database.MenuItem{menuItemFixture(itemID, enum.MealSlotAlmuerzo, "2026-03-02")}

	svc := &mockSubmitter{
		submitFn: func(ctx context.Context, gid uuid.UUID, drafts []service.OrderLineDraft, total decimal.Decimal) (*service.SubmitResult, error) {
			return nil, &service.PersistenceError{Step: "create order 1/1", Err: context.DeadlineExceeded}
		},
	}
	router := setupOrderRouter(svc, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "POST", "/orders", submitBody(studentID, itemID, "2026-03-02"), claims)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	// The response must not offer a payment retry; re-submission is the
	// recovery path here.
	resp := decodeResponse(t, rr)
	if _, ok := resp["retry"]; ok {
		t.Fatal("persistence failure must not carry a retry affordance")
	}
}

func TestSubmitOrder_Unauthenticated(t *testing.T) {
	router := setupOrderRouter(&mockSubmitter{}, newMockOrderStore())

	req := httptest.NewRequest("POST", "/orders", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// --- List / Cancel tests ---

func TestListOrders(t *testing.T) {
	guardianID := uuid.New()
	store := newMockOrderStore()
	orderID := uuid.New()
	store.orders[orderID] = database.Order{
		ID:            orderID,
		GuardianID:    guardianID,
		StudentID:     uuid.New(),
		MenuItemID:    uuid.New(),
		DeliveryDate:  pgtype.Date{Time: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Valid: true},
		Quantity:      1,
		UnitPrice:     makeNumeric("3500.00"),
		TotalAmount:   makeNumeric("3500.00"),
		Status:        enum.OrderStatusPending,
		PaymentStatus: enum.PaymentStatusPending,
	}
	// A foreign order must not appear.
	foreignID := uuid.New()
	store.orders[foreignID] = database.Order{ID: foreignID, GuardianID: uuid.New()}

	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "GET", "/orders", nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp))
	}
	if resp[0]["unit_price"] != "3500.00" {
		t.Errorf("unit_price: got %v", resp[0]["unit_price"])
	}
}

func TestCancelOrder_Pending(t *testing.T) {
	guardianID := uuid.New()
	store := newMockOrderStore()
	orderID := uuid.New()
	store.orders[orderID] = database.Order{
		ID:            orderID,
		GuardianID:    guardianID,
		DeliveryDate:  pgtype.Date{Time: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Valid: true},
		Status:        enum.OrderStatusPending,
		PaymentStatus: enum.PaymentStatusPending,
		UnitPrice:     makeNumeric("3500.00"),
		TotalAmount:   makeNumeric("3500.00"),
	}
	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "DELETE", "/orders/"+orderID.String(), nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != enum.OrderStatusCancelled {
		t.Errorf("status: got %v, want %s", resp["status"], enum.OrderStatusCancelled)
	}
}

func TestCancelOrder_PaidConflict(t *testing.T) {
	guardianID := uuid.New()
	store := newMockOrderStore()
	orderID := uuid.New()
	store.orders[orderID] = database.Order{
		ID:            orderID,
		GuardianID:    guardianID,
		DeliveryDate:  pgtype.Date{Time: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Valid: true},
		Status:        enum.OrderStatusPaid,
		PaymentStatus: enum.PaymentStatusPaid,
	}
	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: guardianID, Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "DELETE", "/orders/"+orderID.String(), nil, claims)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestCancelOrder_ForeignGuardian(t *testing.T) {
	store := newMockOrderStore()
	orderID := uuid.New()
	store.orders[orderID] = database.Order{
		ID:            orderID,
		GuardianID:    uuid.New(),
		Status:        enum.OrderStatusPending,
		PaymentStatus: enum.PaymentStatusPending,
	}
	router := setupOrderRouter(&mockSubmitter{}, store)
	claims := &auth.Claims{GuardianID: uuid.New(), Role: enum.GuardianRoleUser}

	rr := doAuthRequest(t, router, "DELETE", "/orders/"+orderID.String(), nil, claims)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}
