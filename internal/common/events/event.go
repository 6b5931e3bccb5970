// Package events defines the domain event envelope and payloads published
// after storage commits.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types
const (
	EventWalletCredited       = "wallet.credited"
	EventWalletDebited        = "wallet.debited"
	EventDepositUnderMinimum  = "deposit.under_minimum"
	EventDepositInvoiceIssued = "deposit.invoice_issued"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// New creates a new event
func New(eventType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		OccurredAt:  time.Now().UTC(),
		AggregateID: aggregateID,
		Data:        dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WalletCreditedData is the data for wallet.credited events
type WalletCreditedData struct {
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	BonusPct    int    `json:"bonus_pct"`
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	NewBalance  int64  `json:"new_balance_minor"`
}

// WalletDebitedData is the data for wallet.debited events
type WalletDebitedData struct {
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	NewBalance  int64  `json:"new_balance_minor"`
}

// DepositUnderMinimumData is the data for deposit.under_minimum events
type DepositUnderMinimumData struct {
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
}

// InvoiceIssuedData is the data for deposit.invoice_issued events
type InvoiceIssuedData struct {
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
}
