package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront/internal/common/database"
	"storefront/internal/common/money"
	"storefront/internal/wallet"
)

// CallbackRecord is a processor callback normalized for persistence. Every
// authenticated, well-formed callback produces one Record call, whatever its
// status.
type CallbackRecord struct {
	OrderID     string
	UserID      string
	PaymentID   string
	Status      string
	PriceAmount money.Money
	PayAmount   float64
	PayCurrency string
	RawPayload  []byte
}

// PostgresStore persists invoice records and performs settlement together with
// the wallet ledger in a single transaction.
type PostgresStore struct {
	db      *database.DB
	wallets *wallet.PostgresStore
}

func NewPostgresStore(db *database.DB, wallets *wallet.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db, wallets: wallets}
}

// CreatePending records a freshly issued invoice. Issuance must not fail on a
// duplicate order id, so conflicts are ignored.
func (s *PostgresStore) CreatePending(ctx context.Context, inv *Invoice) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_invoices (
			order_id, user_id, payment_id, status,
			price_amount_minor, price_currency, invoice_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (order_id) DO NOTHING`,
		inv.OrderID, inv.UserID, inv.PaymentID, inv.Status,
		inv.PriceAmount.AmountMinor, inv.PriceAmount.Currency, inv.InvoiceURL,
	)
	if err != nil {
		return fmt.Errorf("insert pending invoice: %w", err)
	}
	return nil
}

// Record upserts a callback into the invoice record, keyed by order id. A row
// already in a terminal status keeps that status; payment details and the raw
// payload are still refreshed so the latest callback is always traceable.
func (s *PostgresStore) Record(ctx context.Context, rec *CallbackRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_invoices (
			order_id, user_id, payment_id, status,
			price_amount_minor, price_currency,
			pay_amount, pay_currency, raw_payload,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (order_id) DO UPDATE SET
			payment_id = COALESCE(NULLIF(EXCLUDED.payment_id, ''), payment_invoices.payment_id),
			status = CASE
				WHEN payment_invoices.status IN ('credited', 'under_minimum')
				THEN payment_invoices.status
				ELSE EXCLUDED.status
			END,
			price_amount_minor = EXCLUDED.price_amount_minor,
			pay_amount = EXCLUDED.pay_amount,
			pay_currency = EXCLUDED.pay_currency,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = now()`,
		rec.OrderID, nullStr(rec.UserID), rec.PaymentID, rec.Status,
		rec.PriceAmount.AmountMinor, rec.PriceAmount.Currency,
		rec.PayAmount, rec.PayCurrency, rec.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("record callback for order %s: %w", rec.OrderID, err)
	}
	return nil
}

// Settle transitions an invoice to credited and applies the deposit to the
// wallet, atomically. The transition is conditional on the invoice not already
// being terminal, which makes settlement idempotent under redelivery: the
// second delivery finds zero rows to transition and applies nothing.
func (s *PostgresStore) Settle(ctx context.Context, orderID string, bonusPct int, txn *wallet.Transaction) (bool, money.Money, error) {
	var (
		credited bool
		balance  money.Money
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_invoices
			SET status = 'credited', bonus_pct = $2, updated_at = now()
			WHERE order_id = $1 AND status NOT IN ('credited', 'under_minimum')`,
			orderID, bonusPct,
		)
		if err != nil {
			return fmt.Errorf("transition invoice to credited: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		balance, err = s.wallets.ApplyTx(ctx, tx, txn)
		if err != nil {
			return fmt.Errorf("apply deposit: %w", err)
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, money.Money{}, fmt.Errorf("settle order %s: %w", orderID, err)
	}
	return credited, balance, nil
}

// MarkUnderMinimum transitions an invoice to under_minimum unless it is
// already terminal. Returns whether this call performed the transition.
func (s *PostgresStore) MarkUnderMinimum(ctx context.Context, orderID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_invoices
		SET status = 'under_minimum', updated_at = now()
		WHERE order_id = $1 AND status NOT IN ('credited', 'under_minimum')`,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("mark order %s under minimum: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches an invoice by order id.
func (s *PostgresStore) Get(ctx context.Context, orderID string) (*Invoice, error) {
	inv := &Invoice{}
	var (
		userID, paymentID, payCurrency, invoiceURL *string
		payAmount                                  *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT order_id, user_id, payment_id, status,
		       price_amount_minor, price_currency,
		       pay_amount, pay_currency, invoice_url, bonus_pct,
		       created_at, updated_at
		FROM payment_invoices
		WHERE order_id = $1`,
		orderID,
	).Scan(
		&inv.OrderID, &userID, &paymentID, &inv.Status,
		&inv.PriceAmount.AmountMinor, &inv.PriceAmount.Currency,
		&payAmount, &payCurrency, &invoiceURL, &inv.BonusPct,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("get invoice %s: %w", orderID, err)
	}
	if userID != nil {
		inv.UserID = *userID
	}
	if paymentID != nil {
		inv.PaymentID = *paymentID
	}
	if payAmount != nil {
		inv.PayAmount = *payAmount
	}
	if payCurrency != nil {
		inv.PayCurrency = *payCurrency
	}
	if invoiceURL != nil {
		inv.InvoiceURL = *invoiceURL
	}
	return inv, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
