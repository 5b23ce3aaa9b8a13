package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Errors returned by the gateway client.
var (
	ErrEmptyProcessURL = errors.New("gateway returned an empty process url")
)

// RejectionError is a definitive refusal from the gateway (a 4xx
// response): the session will never be created for this request, so
// retrying it is pointless. Transient faults (5xx, network errors)
// stay plain errors.
type RejectionError struct {
	StatusCode int
	Message    string
}

func (e *RejectionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway rejected payment (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway rejected payment (%d)", e.StatusCode)
}

// CreatePaymentRequest is the gateway's session-creation payload.
type CreatePaymentRequest struct {
	TransactionID string             `json:"transactionId"`
	TotalAmount   float64            `json:"totalAmount"`
	OrderSummary  []OrderSummaryItem `json:"orderSummary"`
}

// OrderSummaryItem is one line of the structured order summary shown on
// the gateway's payment page.
type OrderSummaryItem struct {
	StudentID   string  `json:"studentId"`
	StudentName string  `json:"studentName"`
	Date        string  `json:"date"`
	MenuType    string  `json:"menuType"`
	MenuItem    string  `json:"menuItem"`
	Quantity    int32   `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
}

// CreatePaymentResponse carries the redirect URL and the gateway's own
// id for the session.
type CreatePaymentResponse struct {
	ProcessURL string `json:"processUrl"`
	RequestID  string `json:"requestId"`
}

type gatewayError struct {
	Message string `json:"message"`
	Error_  string `json:"error"`
}

// Client talks to the redirect-based payment gateway's JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway Client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreatePayment creates a payment session and returns the page the
// guardian is redirected to. Any non-2xx response is an error carrying
// the gateway's message.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg string
		var ge gatewayError
		if json.Unmarshal(raw, &ge) == nil {
			msg = ge.Message
			if msg == "" {
				msg = ge.Error_
			}
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &RejectionError{StatusCode: resp.StatusCode, Message: msg}
		}
		if msg != "" {
			return nil, fmt.Errorf("gateway error (%d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("gateway error (%d)", resp.StatusCode)
	}

	var out CreatePaymentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if out.ProcessURL == "" {
		return nil, ErrEmptyProcessURL
	}
	return &out, nil
}
