package payments

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storefront/internal/common/api"
	"storefront/internal/common/database"
	"storefront/internal/common/events"
	"storefront/internal/common/middleware"
	"storefront/internal/common/money"
	"storefront/internal/payments/nowpayments"
)

// InvoiceCreator creates hosted invoices with the payment processor.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req nowpayments.InvoiceRequest) (*nowpayments.InvoiceResponse, error)
}

// IssuerStore persists issued invoices.
type IssuerStore interface {
	CreatePending(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, orderID string) (*Invoice, error)
}

// Publisher publishes domain events after the storage write.
type Publisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// IssuerConfig carries the URLs wired into every issued invoice.
type IssuerConfig struct {
	IPNCallbackURL string `envconfig:"NOWPAYMENTS_IPN_CALLBACK_URL" required:"true"`
	SuccessURL     string `envconfig:"DEPOSIT_SUCCESS_URL" default:""`
	CancelURL      string `envconfig:"DEPOSIT_CANCEL_URL" default:""`
}

// Issuer handles deposit creation: it asks the processor for a hosted invoice
// and hands the customer its payment page URL.
type Issuer struct {
	processor InvoiceCreator
	store     IssuerStore
	publisher Publisher
	cfg       IssuerConfig
	logger    *slog.Logger
}

func NewIssuer(processor InvoiceCreator, store IssuerStore, publisher Publisher, cfg IssuerConfig, logger *slog.Logger) *Issuer {
	return &Issuer{
		processor: processor,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("component", "invoice_issuer"),
	}
}

// DepositRequest is the authenticated deposit creation payload. Amount is in
// major currency units (dollars).
type DepositRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// DepositResponse points the customer at the processor's payment page.
type DepositResponse struct {
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

// CreateDeposit handles POST /api/v1/deposits.
func (h *Issuer) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	var req DepositRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.BadRequest(w, api.ValidationMessage(err))
		return
	}

	price := money.FromMajor(req.Amount, money.USD)
	orderID := NewOrderID(userID)

	resp, err := h.processor.CreateInvoice(ctx, nowpayments.InvoiceRequest{
		PriceAmount:    price.ToMajor(),
		PriceCurrency:  "usd",
		OrderID:        orderID,
		IPNCallbackURL: h.cfg.IPNCallbackURL,
		SuccessURL:     h.cfg.SuccessURL,
		CancelURL:      h.cfg.CancelURL,
	})
	if err != nil {
		h.logger.Error("invoice creation failed", "order_id", orderID, "error", err)
		var apiErr *nowpayments.APIError
		if errors.As(err, &apiErr) {
			api.InternalError(w, apiErr.Message)
			return
		}
		api.InternalError(w, "failed to create invoice")
		return
	}

	// Issuance already succeeded from the customer's point of view; a failed
	// record write is logged, not surfaced. The webhook upsert repairs the
	// missing row on the first callback.
	inv := &Invoice{
		OrderID:     orderID,
		UserID:      userID,
		PaymentID:   resp.ID,
		Status:      StatusPending,
		PriceAmount: price,
		InvoiceURL:  resp.InvoiceURL,
	}
	if err := h.store.CreatePending(ctx, inv); err != nil {
		h.logger.Warn("failed to record pending invoice", "order_id", orderID, "error", err)
	}

	h.publish(ctx, events.EventDepositInvoiceIssued, userID, events.InvoiceIssuedData{
		UserID:      userID,
		OrderID:     orderID,
		AmountMinor: price.AmountMinor,
	})

	h.logger.Info("invoice issued",
		"order_id", orderID,
		"user_id", userID,
		"amount_minor", price.AmountMinor)

	api.WriteJSON(w, http.StatusOK, DepositResponse{URL: resp.InvoiceURL, OrderID: orderID})
}

// DepositStatusResponse is what the front-end polls after sending the
// customer to the payment page.
type DepositStatusResponse struct {
	OrderID  string  `json:"order_id"`
	Status   string  `json:"status"`
	Amount   float64 `json:"amount"`
	BonusPct int     `json:"bonus_pct"`
}

// GetDeposit handles GET /api/v1/deposits/{orderID}.
func (h *Issuer) GetDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	inv, err := h.store.Get(ctx, orderID)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "deposit not found")
			return
		}
		h.logger.Error("failed to load invoice", "order_id", orderID, "error", err)
		api.InternalError(w, "failed to load deposit")
		return
	}
	// Other users' deposits look nonexistent.
	if inv.UserID != userID {
		api.NotFound(w, "deposit not found")
		return
	}

	api.WriteJSON(w, http.StatusOK, DepositStatusResponse{
		OrderID:  inv.OrderID,
		Status:   inv.Status,
		Amount:   inv.PriceAmount.ToMajor(),
		BonusPct: inv.BonusPct,
	})
}

func (h *Issuer) publish(ctx context.Context, eventType, aggregateID string, data interface{}) {
	if h.publisher == nil {
		return
	}
	event, err := events.New(eventType, aggregateID, data)
	if err != nil {
		h.logger.Error("failed to build event", "type", eventType, "error", err)
		return
	}
	event.WithCorrelation(middleware.GetCorrelationID(ctx))
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
