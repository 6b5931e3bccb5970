// Package nowpayments is a minimal client for the NOWPayments REST API,
// covering the invoice endpoint the storefront uses.
package nowpayments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds processor credentials and connection settings.
type Config struct {
	BaseURL   string        `envconfig:"NOWPAYMENTS_BASE_URL" default:"https://api.nowpayments.io/v1"`
	APIKey    string        `envconfig:"NOWPAYMENTS_API_KEY" required:"true"`
	IPNSecret string        `envconfig:"NOWPAYMENTS_IPN_SECRET" required:"true"`
	Timeout   time.Duration `envconfig:"NOWPAYMENTS_TIMEOUT" default:"30s"`
}

// APIError is a non-2xx response from the processor.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nowpayments: %s (status %d)", e.Message, e.StatusCode)
}

// Client calls the NOWPayments API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.With("component", "nowpayments"),
	}
}

// InvoiceRequest is the payload for POST /invoice.
type InvoiceRequest struct {
	PriceAmount    float64 `json:"price_amount"`
	PriceCurrency  string  `json:"price_currency"`
	OrderID        string  `json:"order_id"`
	IPNCallbackURL string  `json:"ipn_callback_url"`
	SuccessURL     string  `json:"success_url,omitempty"`
	CancelURL      string  `json:"cancel_url,omitempty"`
}

// InvoiceResponse is the processor's invoice, most importantly the hosted
// payment page URL the customer is sent to.
type InvoiceResponse struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	InvoiceURL string `json:"invoice_url"`
}

// CreateInvoice creates a hosted invoice with the processor.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (*InvoiceResponse, error) {
	var (
		out    InvoiceResponse
		apiErr struct {
			Message string `json:"message"`
		}
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/invoice")
	if err != nil {
		return nil, fmt.Errorf("nowpayments create invoice: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error("invoice creation rejected",
			"status", resp.StatusCode(),
			"order_id", req.OrderID,
			"message", msg)
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if out.InvoiceURL == "" {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: "response missing invoice_url"}
	}
	return &out, nil
}
