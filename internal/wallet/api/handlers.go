package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storefront/internal/common/api"
	"storefront/internal/common/middleware"
	"storefront/internal/common/money"
	"storefront/internal/wallet"
)

// Handler handles wallet HTTP requests for the browser front-end.
type Handler struct {
	service *wallet.Service
}

// NewHandler creates a new wallet handler.
func NewHandler(service *wallet.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the wallet routes. All routes require bearer auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/wallet", h.GetWallet)
	r.Get("/wallet/transactions", h.ListTransactions)
	r.Post("/purchases", h.CreatePurchase)

	return r
}

// WalletResponse is the balance payload shown on the profile page.
type WalletResponse struct {
	Balance float64 `json:"balance"`
}

// GetWallet handles GET /wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		api.InternalError(w, "failed to load wallet")
		return
	}

	api.WriteJSON(w, http.StatusOK, WalletResponse{Balance: balance.ToMajor()})
}

// TransactionResponse is one history row.
type TransactionResponse struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Kind        string  `json:"kind"`
	Description string  `json:"description,omitempty"`
	ExternalRef string  `json:"external_ref,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// ListTransactions handles GET /wallet/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.service.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		api.InternalError(w, "failed to load transactions")
		return
	}

	resp := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, TransactionResponse{
			ID:          t.ID,
			Amount:      t.Amount.ToMajor(),
			Kind:        string(t.Kind),
			Description: t.Description,
			ExternalRef: t.ExternalRef,
			CreatedAt:   t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// PurchaseRequest is the checkout debit request.
type PurchaseRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"max=500"`
}

// PurchaseResponse carries the balance after a successful debit.
type PurchaseResponse struct {
	Balance float64 `json:"balance"`
}

// CreatePurchase handles POST /purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PurchaseRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.BadRequest(w, api.ValidationMessage(err))
		return
	}

	amount := money.FromMajor(req.Amount, money.USD)
	balance, err := h.service.Purchase(r.Context(), userID, amount, req.Description)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			api.PaymentRequired(w, "insufficient balance")
			return
		}
		api.InternalError(w, "failed to complete purchase")
		return
	}

	api.WriteJSON(w, http.StatusOK, PurchaseResponse{Balance: balance.ToMajor()})
}
