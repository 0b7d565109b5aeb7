package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"till-service/internal/models"
	"till-service/internal/service"
	"till-service/internal/session"
	"till-service/internal/txclient"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"
)

type stubBackend struct {
	products    []models.Product
	addErr      error
	checkoutErr error
	change      decimal.Decimal
}

func (b *stubBackend) FetchCatalog(context.Context) ([]models.Product, error) {
	return append([]models.Product(nil), b.products...), nil
}

func (b *stubBackend) AddToCart(_ context.Context, _ string, productID int64) (int, error) {
	if b.addErr != nil {
		return 0, b.addErr
	}
	for i := range b.products {
		if b.products[i].ID == productID {
			b.products[i].Quantity--
			return b.products[i].Quantity, nil
		}
	}
	return 0, errors.New("no such product")
}

func (b *stubBackend) Checkout(context.Context, string, []models.CheckoutItem, decimal.Decimal) (decimal.Decimal, error) {
	if b.checkoutErr != nil {
		return decimal.Zero, b.checkoutErr
	}
	return b.change, nil
}

func (b *stubBackend) ResolveTransactionID(_ context.Context, sessionID string) (string, error) {
	return "T-" + sessionID, nil
}

func (b *stubBackend) Reset(context.Context, string) error { return nil }

type stubJournal struct {
	from, to time.Time
}

func (j *stubJournal) Summary(_ context.Context, tillID string, from, to time.Time) (*models.SalesSummary, error) {
	j.from, j.to = from, to
	return &models.SalesSummary{
		TillID:      tillID,
		From:        from,
		To:          to,
		Sales:       3,
		Revenue:     decimal.RequireFromString("21.5"),
		ChangeGiven: decimal.RequireFromString("4"),
		Resets:      1,
	}, nil
}

func setupRouter(t *testing.T, backend *stubBackend, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	till := service.NewTillService(backend, session.NewProvider("till-api", session.NewMemoryStore()), service.Options{
		TillID:         "till-api",
		RequestTimeout: time.Second,
	})
	require.NoError(t, till.Init(context.Background()))

	if opts.Currency == (currency.Unit{}) {
		opts.Currency = currency.EUR
	}
	opts.TillID = "till-api"

	router := gin.New()
	NewHandler(till, opts).SetupRoutes(router)
	return router
}

func newBackend() *stubBackend {
	return &stubBackend{products: []models.Product{
		{ID: 1, Name: "Brownie", Price: decimal.RequireFromString("2.5"), Quantity: 4, ImageURL: "/img/b.jpg"},
		{ID: 2, Name: "Paperback", Price: decimal.RequireFromString("1"), Quantity: 0},
	}}
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestGetTill(t *testing.T) {
	router := setupRouter(t, newBackend(), Options{})

	w, body := do(t, router, http.MethodGet, "/api/v1/till", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "IDLE", body["phase"])
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, "0.00", body["total"])
	products := body["products"].([]any)
	require.Len(t, products, 2)
	first := products[0].(map[string]any)
	assert.Equal(t, "2.50", first["price"])
	assert.Equal(t, true, first["inStock"])
	assert.Equal(t, false, products[1].(map[string]any)["inStock"])
	assert.NotContains(t, body, "change")
}

func TestSaleFlow(t *testing.T) {
	backend := newBackend()
	backend.change = decimal.RequireFromString("2.5")
	router := setupRouter(t, backend, Options{})

	for i := 0; i < 3; i++ {
		w, _ := do(t, router, http.MethodPost, "/api/v1/till/cart/1", "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, body := do(t, router, http.MethodPut, "/api/v1/till/cash", `{"cashPaid":"10.00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7.50", body["total"])
	assert.Equal(t, "10.00", body["cashPaid"])
	assert.Equal(t, true, body["canCheckout"])

	w, body = do(t, router, http.MethodPost, "/api/v1/till/checkout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SETTLED", body["phase"])
	assert.Equal(t, "2.50", body["change"])
	assert.Empty(t, body["lines"])
	assert.Equal(t, "", body["cashPaid"])

	w, body = do(t, router, http.MethodPost, "/api/v1/till/acknowledge", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IDLE", body["phase"])
}

func TestCashAcceptsNumber(t *testing.T) {
	router := setupRouter(t, newBackend(), Options{})

	w, body := do(t, router, http.MethodPut, "/api/v1/till/cash", `{"cashPaid":12.5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12.5", body["cashPaid"])

	w, body = do(t, router, http.MethodPut, "/api/v1/till/cash", `{"cashPaid":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", body["cashPaid"])
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		arrange    func(b *stubBackend)
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "known out of stock", method: http.MethodPost, path: "/api/v1/till/cart/2", wantStatus: http.StatusConflict},
		{name: "unknown product", method: http.MethodPost, path: "/api/v1/till/cart/99", wantStatus: http.StatusNotFound},
		{name: "bad product id", method: http.MethodPost, path: "/api/v1/till/cart/abc", wantStatus: http.StatusBadRequest},
		{name: "empty cart checkout", method: http.MethodPost, path: "/api/v1/till/checkout", wantStatus: http.StatusUnprocessableEntity},
		{
			name: "add failed upstream",
			arrange: func(b *stubBackend) {
				b.addErr = &txclient.Error{Kind: txclient.ErrAddFailed, Op: "add_to_cart", Status: 500, Message: "Database unavailable"}
			},
			method: http.MethodPost, path: "/api/v1/till/cart/1", wantStatus: http.StatusBadGateway,
		},
		{
			name: "add timed out",
			arrange: func(b *stubBackend) {
				b.addErr = &txclient.Error{Kind: txclient.ErrAddFailed, Op: "add_to_cart", Timeout: true, Err: context.DeadlineExceeded}
			},
			method: http.MethodPost, path: "/api/v1/till/cart/1", wantStatus: http.StatusGatewayTimeout,
		},
		{name: "malformed cash body", method: http.MethodPut, path: "/api/v1/till/cash", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			if tt.arrange != nil {
				tt.arrange(backend)
			}
			router := setupRouter(t, backend, Options{})

			w, body := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCheckoutFailureReturnsTill(t *testing.T) {
	backend := newBackend()
	backend.checkoutErr = &txclient.Error{Kind: txclient.ErrInsufficientPayment, Op: "checkout", Status: 402, Message: "Cash paid is less than total"}
	router := setupRouter(t, backend, Options{})

	w, _ := do(t, router, http.MethodPost, "/api/v1/till/cart/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, router, http.MethodPut, "/api/v1/till/cash", `{"cashPaid":"1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, router, http.MethodPost, "/api/v1/till/checkout", "")
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "Cash paid is less than total", body["error"])

	till := body["till"].(map[string]any)
	assert.Equal(t, "ACCUMULATING", till["phase"])
	assert.Len(t, till["lines"], 1)
	assert.Equal(t, "Cash paid is less than total", till["error"])
}

func TestReset(t *testing.T) {
	router := setupRouter(t, newBackend(), Options{})

	w, _ := do(t, router, http.MethodPost, "/api/v1/till/cart/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, router, http.MethodPost, "/api/v1/till/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IDLE", body["phase"])
	assert.Empty(t, body["lines"])
}

func TestReadiness(t *testing.T) {
	router := setupRouter(t, newBackend(), Options{Checks: map[string]func(context.Context) error{
		"redis": func(context.Context) error { return nil },
		"db":    func(context.Context) error { return errors.New("connection refused") },
	}})

	w, body := do(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, map[string]any{"db": "connection refused"}, body["failures"])

	w, _ = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJournalSummary(t *testing.T) {
	journal := &stubJournal{}
	router := setupRouter(t, newBackend(), Options{Journal: journal})

	w, body := do(t, router, http.MethodGet,
		"/api/v1/till/journal/summary?from=2026-10-01T00:00:00Z&to=2026-10-02T00:00:00Z", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "21.50", body["revenue"])
	assert.Equal(t, "4.00", body["changeGiven"])
	assert.Equal(t, float64(3), body["sales"])
	assert.Equal(t, "till-api", body["tillId"])
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), journal.from)

	w, _ = do(t, router, http.MethodGet, "/api/v1/till/journal/summary?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJournalSummaryDisabled(t *testing.T) {
	router := setupRouter(t, newBackend(), Options{})

	w, _ := do(t, router, http.MethodGet, "/api/v1/till/journal/summary", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
