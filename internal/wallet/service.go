package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/common/events"
	"storefront/internal/common/money"
)

// ErrInsufficientBalance is returned by Purchase when the wallet does not
// cover the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Store persists wallets and transactions.
type Store interface {
	Apply(ctx context.Context, txn *Transaction) (money.Money, error)
	Balance(ctx context.Context, userID string) (money.Money, error)
	Transactions(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error)
}

// Publisher publishes domain events. May be nil when eventing is disabled.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Service provides wallet ledger operations.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a new wallet service.
func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// ApplyCommand describes a single credit or debit.
type ApplyCommand struct {
	UserID      string
	Amount      money.Money // signed: positive credits, negative debits
	Kind        Kind
	Description string
	ExternalRef string
}

// Apply appends one ledger entry and returns the new balance. The ledger does
// not enforce non-negative balances; sufficiency checks belong to the caller.
func (s *Service) Apply(ctx context.Context, cmd ApplyCommand) (money.Money, error) {
	txn, err := NewTransaction(cmd.UserID, cmd.Amount, cmd.Kind, cmd.Description, cmd.ExternalRef)
	if err != nil {
		return money.Money{}, fmt.Errorf("building transaction: %w", err)
	}

	balance, err := s.store.Apply(ctx, txn)
	if err != nil {
		return money.Money{}, err
	}

	s.logger.Info("wallet transaction applied",
		"user_id", cmd.UserID,
		"transaction_id", txn.ID,
		"kind", cmd.Kind,
		"amount", cmd.Amount.AmountMinor,
		"new_balance", balance.AmountMinor,
	)

	return balance, nil
}

// Balance returns the user's current balance, zero for users without a wallet.
func (s *Service) Balance(ctx context.Context, userID string) (money.Money, error) {
	return s.store.Balance(ctx, userID)
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.Transactions(ctx, userID, limit, offset)
}

// Purchase debits the wallet for a checkout. The sufficiency check lives here,
// at the caller side of the ledger primitive.
func (s *Service) Purchase(ctx context.Context, userID string, amount money.Money, description string) (money.Money, error) {
	if !amount.IsPositive() {
		return money.Money{}, errors.New("purchase amount must be positive")
	}

	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return money.Money{}, err
	}
	if balance.LessThan(amount) {
		return money.Money{}, ErrInsufficientBalance
	}

	newBalance, err := s.Apply(ctx, ApplyCommand{
		UserID:      userID,
		Amount:      amount.Negate(),
		Kind:        KindPurchase,
		Description: description,
	})
	if err != nil {
		return money.Money{}, err
	}

	s.publish(ctx, events.EventWalletDebited, userID, events.WalletDebitedData{
		UserID:      userID,
		AmountMinor: amount.AmountMinor,
		Currency:    string(amount.Currency),
		Description: description,
		NewBalance:  newBalance.AmountMinor,
	})

	return newBalance, nil
}

// publish emits an event after the storage commit. Failures are logged and
// never fail the caller.
func (s *Service) publish(ctx context.Context, eventType, aggregateID string, data interface{}) {
	if s.publisher == nil {
		return
	}
	event, err := events.New(eventType, aggregateID, data)
	if err != nil {
		s.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
