// Package wallet provides the append-only wallet ledger: per-user balances
// derived from an immutable transaction history.
package wallet

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"storefront/internal/common/money"
)

// Kind classifies a wallet transaction.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindPurchase Kind = "purchase"
)

// Transaction is one immutable ledger entry. Positive amounts credit the
// wallet, negative amounts debit it.
type Transaction struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Amount      money.Money `json:"amount"`
	Kind        Kind        `json:"kind"`
	Description string      `json:"description,omitempty"`
	ExternalRef string      `json:"external_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewTransaction builds a ledger entry ready to be applied.
func NewTransaction(userID string, amount money.Money, kind Kind, description, externalRef string) (*Transaction, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}
	if amount.IsZero() {
		return nil, errors.New("amount must be non-zero")
	}
	if kind == "" {
		return nil, errors.New("kind is required")
	}

	return &Transaction{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		ExternalRef: externalRef,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
