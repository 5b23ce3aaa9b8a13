package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func paymentRequest() CreatePaymentRequest {
	return CreatePaymentRequest{
		TransactionID: "tx-1764590400000-abc1234",
		TotalAmount:   7000,
		OrderSummary: []OrderSummaryItem{
			{
				StudentID:   "11111111-1111-1111-1111-111111111111",
				StudentName: "Sofía Rojas",
				Date:        "2026-03-02",
				MenuType:    "ALMUERZO",
				MenuItem:    "Almuerzo lunes",
				Quantity:    1,
				UnitPrice:   3500,
				TotalPrice:  3500,
			},
		},
	}
}

func TestCreatePayment_Success(t *testing.T) {
	var gotAuth string
	var gotReq CreatePaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(CreatePaymentResponse{
			ProcessURL: "https://checkout.example/session/abc",
			RequestID:  "req-123",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	resp, err := c.CreatePayment(context.Background(), paymentRequest())
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.ProcessURL != "https://checkout.example/session/abc" {
		t.Fatalf("unexpected process url: %s", resp.ProcessURL)
	}
	if resp.RequestID != "req-123" {
		t.Fatalf("unexpected request id: %s", resp.RequestID)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotReq.TransactionID != "tx-1764590400000-abc1234" {
		t.Fatalf("unexpected transaction id: %s", gotReq.TransactionID)
	}
	if len(gotReq.OrderSummary) != 1 || gotReq.OrderSummary[0].MenuType != "ALMUERZO" {
		t.Fatalf("unexpected order summary: %+v", gotReq.OrderSummary)
	}
}

func TestCreatePayment_GatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "amount below minimum"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.CreatePayment(context.Background(), paymentRequest())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "amount below minimum") {
		t.Fatalf("expected gateway message in error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected status code in error, got: %v", err)
	}
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected *RejectionError, got %T", err)
	}
	if rejection.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status code: %d", rejection.StatusCode)
	}
}

func TestCreatePayment_ServerErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.CreatePayment(context.Background(), paymentRequest())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		t.Fatalf("5xx must stay a transient error, got rejection: %v", err)
	}
}

func TestCreatePayment_EmptyProcessURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CreatePaymentResponse{RequestID: "req-123"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.CreatePayment(context.Background(), paymentRequest())
	if !errors.Is(err, ErrEmptyProcessURL) {
		t.Fatalf("expected ErrEmptyProcessURL, got: %v", err)
	}
}

func TestCreatePayment_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(CreatePaymentResponse{ProcessURL: "https://x.example/s", RequestID: "r"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.CreatePayment(context.Background(), paymentRequest()); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no auth header, got %q", gotAuth)
	}
}
