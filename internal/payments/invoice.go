// Package payments integrates the NOWPayments processor: invoice issuance and
// the IPN webhook reconciliation that credits wallets at most once per order.
package payments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"storefront/internal/common/money"
)

// Invoice statuses. Processor-reported statuses (waiting, confirming, finished,
// failed, expired, ...) are recorded verbatim; credited and under_minimum are
// terminal statuses assigned by the reconciler and never overwritten.
const (
	StatusPending      = "pending"
	StatusFinished     = "finished"
	StatusCredited     = "credited"
	StatusUnderMinimum = "under_minimum"
)

// IsTerminalStatus reports whether a status must never be overwritten.
func IsTerminalStatus(status string) bool {
	return status == StatusCredited || status == StatusUnderMinimum
}

// Invoice is the durable record of a processor invoice, keyed by order id.
type Invoice struct {
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id"`
	PaymentID     string      `json:"payment_id,omitempty"`
	Status        string      `json:"status"`
	PriceAmount   money.Money `json:"price_amount"`
	PayAmount     float64     `json:"pay_amount,omitempty"`
	PayCurrency   string      `json:"pay_currency,omitempty"`
	InvoiceURL    string      `json:"invoice_url,omitempty"`
	BonusPct      int         `json:"bonus_pct"`
	RawPayload    []byte      `json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

const orderIDPrefix = "deposit"

// NewOrderID generates a globally unique order id embedding the owning user.
// Format: deposit_<user_id>_<ulid>.
func NewOrderID(userID string) string {
	return fmt.Sprintf("%s_%s_%s", orderIDPrefix, userID, ulid.Make().String())
}

// ErrBadOrderID is returned when an order id does not follow the issuer format.
var ErrBadOrderID = errors.New("malformed order id")

// UserIDFromOrderID extracts the owning user id from an order id.
func UserIDFromOrderID(orderID string) (string, error) {
	parts := strings.SplitN(orderID, "_", 3)
	if len(parts) != 3 || parts[0] != orderIDPrefix || parts[1] == "" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrBadOrderID, orderID)
	}
	return parts[1], nil
}

// minCreditMinor is the smallest deposit that gets credited ($30.00).
const minCreditMinor = 3000

// BonusPct returns the deposit bonus percentage for a price amount, evaluated
// highest bracket first. ok is false below the crediting minimum.
func BonusPct(price money.Money) (pct int, ok bool) {
	switch {
	case price.AmountMinor >= 10000:
		return 25, true
	case price.AmountMinor >= 7500:
		return 20, true
	case price.AmountMinor >= 5000:
		return 15, true
	case price.AmountMinor >= minCreditMinor:
		return 0, true
	default:
		return 0, false
	}
}

// TotalWithBonus returns price * (1 + pct/100).
func TotalWithBonus(price money.Money, pct int) money.Money {
	return price.MustAdd(price.Percentage(int64(pct) * 100))
}
