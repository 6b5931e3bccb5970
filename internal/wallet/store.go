package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront/internal/common/database"
	"storefront/internal/common/money"
)

// PostgresStore persists wallets and transactions.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new wallet store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Apply atomically appends the transaction and adjusts the wallet balance,
// creating the wallet at zero if it does not exist yet. Both writes commit
// together or not at all.
func (s *PostgresStore) Apply(ctx context.Context, txn *Transaction) (money.Money, error) {
	var balance money.Money
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = s.ApplyTx(ctx, tx, txn)
		return err
	})
	if err != nil {
		return money.Money{}, err
	}
	return balance, nil
}

// ApplyTx appends the transaction and adjusts the balance within an existing
// transaction. Used by the webhook settlement path, which spans the invoice
// status transition and the credit in one transaction.
func (s *PostgresStore) ApplyTx(ctx context.Context, tx pgx.Tx, txn *Transaction) (money.Money, error) {
	entryQuery := `
		INSERT INTO wallet_transactions (
			id, user_id, amount_minor, currency, kind, description, external_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, entryQuery,
		txn.ID,
		txn.UserID,
		txn.Amount.AmountMinor,
		txn.Amount.Currency,
		txn.Kind,
		txn.Description,
		nullStr(txn.ExternalRef),
		txn.CreatedAt,
	)
	if err != nil {
		return money.Money{}, fmt.Errorf("inserting wallet transaction: %w", err)
	}

	balanceQuery := `
		INSERT INTO user_wallets (user_id, balance_minor, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance_minor = user_wallets.balance_minor + EXCLUDED.balance_minor,
			updated_at = EXCLUDED.updated_at
		RETURNING balance_minor
	`

	var balanceMinor int64
	err = tx.QueryRow(ctx, balanceQuery,
		txn.UserID,
		txn.Amount.AmountMinor,
		txn.Amount.Currency,
		txn.CreatedAt,
	).Scan(&balanceMinor)
	if err != nil {
		return money.Money{}, fmt.Errorf("updating wallet balance: %w", err)
	}

	return money.New(balanceMinor, txn.Amount.Currency), nil
}

// Balance returns the user's current balance, zero for unknown users.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (money.Money, error) {
	query := `SELECT balance_minor, currency FROM user_wallets WHERE user_id = $1`

	var balanceMinor int64
	var currency string
	err := s.db.QueryRow(ctx, query, userID).Scan(&balanceMinor, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return money.Zero(money.USD), nil
		}
		return money.Money{}, fmt.Errorf("getting wallet balance: %w", err)
	}

	return money.New(balanceMinor, money.Currency(currency)), nil
}

// Transactions lists the user's ledger entries, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, amount_minor, currency, kind, description, external_ref, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		var t Transaction
		var amountMinor int64
		var currency string
		var externalRef *string
		err := rows.Scan(&t.ID, &t.UserID, &amountMinor, &currency, &t.Kind, &t.Description, &externalRef, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning wallet transaction: %w", err)
		}
		t.Amount = money.New(amountMinor, money.Currency(currency))
		if externalRef != nil {
			t.ExternalRef = *externalRef
		}
		txns = append(txns, &t)
	}

	return txns, rows.Err()
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
