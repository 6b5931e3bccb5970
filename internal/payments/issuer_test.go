package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/common/database"
	"storefront/internal/common/middleware"
	"storefront/internal/common/money"
	"storefront/internal/payments/nowpayments"
)

type fakeProcessor struct {
	lastReq nowpayments.InvoiceRequest
	resp    *nowpayments.InvoiceResponse
	err     error
}

func (p *fakeProcessor) CreateInvoice(_ context.Context, req nowpayments.InvoiceRequest) (*nowpayments.InvoiceResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

type fakeIssuerStore struct {
	pending []*Invoice
	err     error
}

func (s *fakeIssuerStore) CreatePending(_ context.Context, inv *Invoice) error {
	if s.err != nil {
		return s.err
	}
	s.pending = append(s.pending, inv)
	return nil
}

func (s *fakeIssuerStore) Get(_ context.Context, orderID string) (*Invoice, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, inv := range s.pending {
		if inv.OrderID == orderID {
			return inv, nil
		}
	}
	return nil, database.ErrNotFound
}

func issuerConfig() IssuerConfig {
	return IssuerConfig{
		IPNCallbackURL: "https://shop.example.com/webhooks/nowpayments",
		SuccessURL:     "https://shop.example.com/profile",
		CancelURL:      "https://shop.example.com/profile",
	}
}

func postDeposit(h *Issuer, userID string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/deposits", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.CreateDeposit(rec, req)
	return rec
}

func TestIssuer_CreateDeposit(t *testing.T) {
	processor := &fakeProcessor{resp: &nowpayments.InvoiceResponse{
		ID:         "4522625843",
		InvoiceURL: "https://nowpayments.io/payment/?iid=4522625843",
	}}
	store := &fakeIssuerStore{}
	h := NewIssuer(processor, store, nil, issuerConfig(), testLogger())

	rec := postDeposit(h, "user-1", `{"amount": 50}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DepositResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://nowpayments.io/payment/?iid=4522625843", resp.URL)
	assert.True(t, strings.HasPrefix(resp.OrderID, "deposit_user-1_"))

	assert.Equal(t, 50.0, processor.lastReq.PriceAmount)
	assert.Equal(t, "usd", processor.lastReq.PriceCurrency)
	assert.Equal(t, resp.OrderID, processor.lastReq.OrderID)
	assert.Equal(t, "https://shop.example.com/webhooks/nowpayments", processor.lastReq.IPNCallbackURL)

	require.Len(t, store.pending, 1)
	assert.Equal(t, StatusPending, store.pending[0].Status)
	assert.Equal(t, int64(5000), store.pending[0].PriceAmount.AmountMinor)
	assert.Equal(t, "user-1", store.pending[0].UserID)
}

func TestIssuer_RequiresAuthentication(t *testing.T) {
	h := NewIssuer(&fakeProcessor{}, &fakeIssuerStore{}, nil, issuerConfig(), testLogger())

	rec := postDeposit(h, "", `{"amount": 50}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssuer_RejectsInvalidAmount(t *testing.T) {
	processor := &fakeProcessor{}
	h := NewIssuer(processor, &fakeIssuerStore{}, nil, issuerConfig(), testLogger())

	for _, body := range []string{
		`{"amount": 0}`,
		`{"amount": -5}`,
		`{}`,
		`not json`,
	} {
		rec := postDeposit(h, "user-1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["error"])
	}
	assert.Empty(t, processor.lastReq.OrderID, "processor must not be called")
}

func TestIssuer_ProcessorFailure(t *testing.T) {
	processor := &fakeProcessor{err: &nowpayments.APIError{StatusCode: 403, Message: "Invalid api key"}}
	store := &fakeIssuerStore{}
	h := NewIssuer(processor, store, nil, issuerConfig(), testLogger())

	rec := postDeposit(h, "user-1", `{"amount": 50}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Invalid api key", resp["error"])
	assert.Empty(t, store.pending)
}

func getDeposit(h *Issuer, userID, orderID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/deposits/"+orderID, nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), userID))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderID", orderID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.GetDeposit(rec, req)
	return rec
}

func TestIssuer_GetDeposit(t *testing.T) {
	orderID := NewOrderID("user-1")
	store := &fakeIssuerStore{pending: []*Invoice{{
		OrderID:     orderID,
		UserID:      "user-1",
		Status:      StatusCredited,
		PriceAmount: money.New(10000, money.USD),
		BonusPct:    25,
	}}}
	h := NewIssuer(&fakeProcessor{}, store, nil, issuerConfig(), testLogger())

	rec := getDeposit(h, "user-1", orderID)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DepositStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusCredited, resp.Status)
	assert.Equal(t, 100.0, resp.Amount)
	assert.Equal(t, 25, resp.BonusPct)
}

func TestIssuer_GetDeposit_NotFound(t *testing.T) {
	h := NewIssuer(&fakeProcessor{}, &fakeIssuerStore{}, nil, issuerConfig(), testLogger())

	rec := getDeposit(h, "user-1", "deposit_user-1_01HV3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssuer_GetDeposit_ForeignOrder(t *testing.T) {
	orderID := NewOrderID("user-2")
	store := &fakeIssuerStore{pending: []*Invoice{{
		OrderID: orderID,
		UserID:  "user-2",
		Status:  StatusPending,
	}}}
	h := NewIssuer(&fakeProcessor{}, store, nil, issuerConfig(), testLogger())

	rec := getDeposit(h, "user-1", orderID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssuer_StoreFailureStillSucceeds(t *testing.T) {
	processor := &fakeProcessor{resp: &nowpayments.InvoiceResponse{
		ID:         "1",
		InvoiceURL: "https://nowpayments.io/payment/?iid=1",
	}}
	store := &fakeIssuerStore{err: fmt.Errorf("connection refused")}
	h := NewIssuer(processor, store, nil, issuerConfig(), testLogger())

	// The customer already has an invoice with the processor; the webhook
	// upsert repairs the missing record later.
	rec := postDeposit(h, "user-1", `{"amount": 50}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
