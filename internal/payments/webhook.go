package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"storefront/internal/common/api"
	"storefront/internal/common/events"
	"storefront/internal/common/middleware"
	"storefront/internal/common/money"
	"storefront/internal/wallet"
)

// InvoiceStore is the storage surface the reconciler needs: recording every
// callback and the two terminal transitions.
type InvoiceStore interface {
	Record(ctx context.Context, rec *CallbackRecord) error
	Settle(ctx context.Context, orderID string, bonusPct int, txn *wallet.Transaction) (bool, money.Money, error)
	MarkUnderMinimum(ctx context.Context, orderID string) (bool, error)
}

// WebhookHandler reconciles NOWPayments IPN callbacks. The processor delivers
// at least once; crediting happens at most once.
type WebhookHandler struct {
	store     InvoiceStore
	secret    []byte
	publisher Publisher
	logger    *slog.Logger
}

func NewWebhookHandler(store InvoiceStore, ipnSecret string, publisher Publisher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:     store,
		secret:    []byte(ipnSecret),
		publisher: publisher,
		logger:    logger.With("component", "nowpayments_webhook"),
	}
}

// flexID tolerates the processor sending ids as either JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

// callbackPayload is the subset of the IPN body the reconciler acts on.
type callbackPayload struct {
	PaymentStatus string  `json:"payment_status"`
	Status        string  `json:"status"`
	OrderID       string  `json:"order_id"`
	PaymentID     flexID  `json:"payment_id"`
	ID            flexID  `json:"id"`
	PriceAmount   float64 `json:"price_amount"`
	PayAmount     float64 `json:"pay_amount"`
	PayCurrency   string  `json:"pay_currency"`
}

func (p *callbackPayload) effectiveStatus() string {
	if p.PaymentStatus != "" {
		return p.PaymentStatus
	}
	return p.Status
}

func (p *callbackPayload) effectivePaymentID() string {
	if p.PaymentID != "" {
		return string(p.PaymentID)
	}
	return string(p.ID)
}

// ServeHTTP handles POST /webhooks/nowpayments.
//
// Response codes drive the processor's retry behavior: 401 for a bad
// signature, 400 for a body the handler cannot act on (retrying cannot help),
// 500 for storage failures (retrying will help), 200 once the callback is
// durably recorded.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		api.BadRequest(w, "failed to read request body")
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get("x-nowpayments-sig")) {
		h.logger.Warn("rejected callback with invalid signature", "remote_addr", r.RemoteAddr)
		api.Unauthorized(w, "invalid signature")
		return
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("rejected malformed callback body", "error", err)
		api.BadRequest(w, "invalid JSON body")
		return
	}

	status := payload.effectiveStatus()
	if payload.OrderID == "" || status == "" {
		h.logger.Warn("rejected callback missing required fields",
			"order_id", payload.OrderID, "status", status)
		api.BadRequest(w, "missing order_id or payment status")
		return
	}

	paymentID := payload.effectivePaymentID()
	price := money.FromMajor(payload.PriceAmount, money.USD)
	userID, uidErr := UserIDFromOrderID(payload.OrderID)

	rec := &CallbackRecord{
		OrderID:     payload.OrderID,
		UserID:      userID,
		PaymentID:   paymentID,
		Status:      status,
		PriceAmount: price,
		PayAmount:   payload.PayAmount,
		PayCurrency: payload.PayCurrency,
		RawPayload:  body,
	}
	if err := h.store.Record(ctx, rec); err != nil {
		h.logger.Error("failed to record callback",
			"order_id", payload.OrderID, "status", status, "error", err)
		api.InternalError(w, "failed to record callback")
		return
	}

	if status == StatusFinished {
		if uidErr != nil {
			// A retry delivers the same order id, so failing the request
			// would only loop. Acknowledge and leave the record for review.
			h.logger.Error("finished callback with unparseable order id",
				"order_id", payload.OrderID, "payment_id", paymentID)
			api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
		if err := h.settle(ctx, userID, paymentID, payload.OrderID, price); err != nil {
			h.logger.Error("settlement failed",
				"order_id", payload.OrderID, "user_id", userID, "error", err)
			api.InternalError(w, "settlement failed")
			return
		}
	}

	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *WebhookHandler) settle(ctx context.Context, userID, paymentID, orderID string, price money.Money) error {
	pct, ok := BonusPct(price)
	if !ok {
		transitioned, err := h.store.MarkUnderMinimum(ctx, orderID)
		if err != nil {
			return err
		}
		if transitioned {
			h.logger.Info("deposit under crediting minimum",
				"order_id", orderID, "user_id", userID, "amount_minor", price.AmountMinor)
			h.publish(ctx, events.EventDepositUnderMinimum, userID, events.DepositUnderMinimumData{
				UserID:      userID,
				OrderID:     orderID,
				AmountMinor: price.AmountMinor,
			})
		}
		return nil
	}

	total := TotalWithBonus(price, pct)
	txn, err := wallet.NewTransaction(userID, total, wallet.KindDeposit,
		fmt.Sprintf("NOWPayments deposit %s", paymentID), paymentID)
	if err != nil {
		return fmt.Errorf("build deposit transaction: %w", err)
	}

	credited, balance, err := h.store.Settle(ctx, orderID, pct, txn)
	if err != nil {
		return err
	}
	if !credited {
		h.logger.Info("callback redelivered for settled order", "order_id", orderID)
		return nil
	}

	h.logger.Info("deposit credited",
		"order_id", orderID,
		"user_id", userID,
		"amount_minor", total.AmountMinor,
		"bonus_pct", pct,
		"balance_minor", balance.AmountMinor)
	h.publish(ctx, events.EventWalletCredited, userID, events.WalletCreditedData{
		UserID:      userID,
		AmountMinor: total.AmountMinor,
		Currency:    string(total.Currency),
		BonusPct:    pct,
		OrderID:     orderID,
		PaymentID:   paymentID,
		NewBalance:  balance.AmountMinor,
	})
	return nil
}

func (h *WebhookHandler) publish(ctx context.Context, eventType, aggregateID string, data interface{}) {
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
