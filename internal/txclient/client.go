// Package txclient talks to the inventory/transaction backend and normalizes
// every response into either a typed result or an *Error.
package txclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"till-service/internal/models"
	"till-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	opFetchCatalog = "fetch_catalog"
	opAddToCart    = "add_to_cart"
	opCheckout     = "checkout"
	opResolveTxID  = "resolve_transaction_id"
	opReset        = "reset"

	maxBodyBytes = 1 << 20
)

// Client calls the backend's product and transaction endpoints
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client whose every request is bounded by timeout
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client over a caller-provided http.Client
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		logger:  util.GetLogger(),
	}
}

type addToCartRequest struct {
	SessionID string `json:"sessionId"`
	ProductID int64  `json:"productId"`
}

// remainingQuantity is canonical; remaining is a deprecated alias some
// backends still send.
type addToCartResponse struct {
	RemainingQuantity *int `json:"remainingQuantity"`
	Remaining         *int `json:"remaining"`
}

type checkoutRequest struct {
	Items     []models.CheckoutItem `json:"items"`
	CashPaid  json.Number           `json:"cashPaid"`
	SessionID string                `json:"sessionId"`
}

type checkoutResponse struct {
	Change *decimal.Decimal `json:"change"`
}

type transactionIDResponse struct {
	TransactionID json.RawMessage `json:"transactionId"`
}

// errorBody is the subset of backend error payloads the client understands
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// FetchCatalog lists all products with their current stock
func (c *Client) FetchCatalog(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "TransactionClient.FetchCatalog")
	defer span.End()

	resp, err := c.do(ctx, opFetchCatalog, http.MethodGet, "/api/Products", nil)
	if err != nil {
		return nil, c.transportError(ErrCatalogUnavailable, opFetchCatalog, err, "Failed to load products")
	}
	if !resp.ok() {
		return nil, resp.failure(ErrCatalogUnavailable, opFetchCatalog, "Failed to load products")
	}

	var products []models.Product
	if err := json.Unmarshal(resp.body, &products); err != nil {
		return nil, &Error{Kind: ErrCatalogUnavailable, Op: opFetchCatalog, Status: resp.status,
			Message: "Failed to load products", Payload: string(resp.body), Err: err}
	}
	for _, p := range products {
		if p.Quantity < 0 || p.Price.IsNegative() {
			return nil, &Error{Kind: ErrCatalogUnavailable, Op: opFetchCatalog, Status: resp.status,
				Message: "Failed to load products", Payload: string(resp.body),
				Err: fmt.Errorf("product %d has quantity %d and price %s", p.ID, p.Quantity, p.Price)}
		}
	}
	return products, nil
}

// AddToCart reserves one unit of productID for the session's pending
// transaction and returns the stock the backend has left.
func (c *Client) AddToCart(ctx context.Context, sessionID string, productID int64) (int, error) {
	ctx, span := util.StartSpan(ctx, "TransactionClient.AddToCart")
	defer span.End()

	const fallback = "Could not add product to cart"

	resp, err := c.do(ctx, opAddToCart, http.MethodPost, "/api/Products/add-to-cart",
		addToCartRequest{SessionID: sessionID, ProductID: productID})
	if err != nil {
		return 0, c.transportError(ErrAddFailed, opAddToCart, err, fallback)
	}
	if !resp.ok() {
		if resp.status == http.StatusConflict || resp.status == http.StatusGone || resp.mentions("out_of_stock", "out of stock") {
			return 0, resp.failure(ErrOutOfStock, opAddToCart, "This product is out of stock!")
		}
		return 0, resp.failure(ErrAddFailed, opAddToCart, fallback)
	}

	var out addToCartResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return 0, &Error{Kind: ErrAddFailed, Op: opAddToCart, Status: resp.status,
			Message: fallback, Payload: string(resp.body), Err: err}
	}

	remaining := out.RemainingQuantity
	if remaining == nil && out.Remaining != nil {
		c.logger.Debug("Backend answered add-to-cart with deprecated field", zap.String("field", "remaining"))
		remaining = out.Remaining
	}
	if remaining == nil || *remaining < 0 {
		return 0, &Error{Kind: ErrAddFailed, Op: opAddToCart, Status: resp.status,
			Message: fallback, Payload: string(resp.body), Err: errors.New("response carries no remaining quantity")}
	}
	return *remaining, nil
}

// Checkout finalizes the session's pending transaction and returns the change
// due. A retried checkout is not safe under the same session id.
func (c *Client) Checkout(ctx context.Context, sessionID string, items []models.CheckoutItem, cashPaid decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "TransactionClient.Checkout")
	defer span.End()

	const fallback = "Checkout failed"

	resp, err := c.do(ctx, opCheckout, http.MethodPost, "/api/products/checkout", checkoutRequest{
		Items:     items,
		CashPaid:  json.Number(cashPaid.String()),
		SessionID: sessionID,
	})
	if err != nil {
		return decimal.Zero, c.transportError(ErrCheckoutFailed, opCheckout, err, fallback)
	}
	if !resp.ok() {
		if resp.status == http.StatusPaymentRequired || resp.mentions("insufficient_payment", "insufficient payment") {
			return decimal.Zero, resp.failure(ErrInsufficientPayment, opCheckout, "Insufficient payment")
		}
		return decimal.Zero, resp.failure(ErrCheckoutFailed, opCheckout, fallback)
	}

	var out checkoutResponse
	if err := json.Unmarshal(resp.body, &out); err != nil || out.Change == nil {
		if err == nil {
			err = errors.New("response carries no change")
		}
		return decimal.Zero, &Error{Kind: ErrCheckoutFailed, Op: opCheckout, Status: resp.status,
			Message: fallback, Payload: string(resp.body), Err: err}
	}
	return *out.Change, nil
}

// ResolveTransactionID looks up the pending transaction recorded for sessionID
func (c *Client) ResolveTransactionID(ctx context.Context, sessionID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "TransactionClient.ResolveTransactionID")
	defer span.End()

	const fallback = "Failed to reset transaction."

	resp, err := c.do(ctx, opResolveTxID, http.MethodGet,
		"/api/products/transaction-id/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return "", c.transportError(ErrResetFailed, opResolveTxID, err, fallback)
	}
	if resp.status == http.StatusNotFound {
		return "", resp.failure(ErrUnknownSession, opResolveTxID, fallback)
	}
	if !resp.ok() {
		return "", resp.failure(ErrResetFailed, opResolveTxID, fallback)
	}

	var out transactionIDResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", &Error{Kind: ErrResetFailed, Op: opResolveTxID, Status: resp.status,
			Message: fallback, Payload: string(resp.body), Err: err}
	}
	id := rawID(out.TransactionID)
	if id == "" {
		return "", &Error{Kind: ErrUnknownSession, Op: opResolveTxID, Status: resp.status,
			Message: fallback, Payload: string(resp.body)}
	}
	return id, nil
}

// Reset releases all stock held by the pending transaction
func (c *Client) Reset(ctx context.Context, transactionID string) error {
	ctx, span := util.StartSpan(ctx, "TransactionClient.Reset")
	defer span.End()

	const fallback = "Failed to reset transaction."

	resp, err := c.do(ctx, opReset, http.MethodPost, "/api/products/reset/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return c.transportError(ErrResetFailed, opReset, err, fallback)
	}
	if !resp.ok() {
		return resp.failure(ErrResetFailed, opReset, fallback)
	}
	return nil
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// mentions reports whether the error body's code equals code or its message
// contains phrase, ignoring case.
func (r *response) mentions(code, phrase string) bool {
	var body errorBody
	if json.Unmarshal(r.body, &body) == nil {
		if strings.EqualFold(body.Code, code) {
			return true
		}
		text := body.Message + " " + body.Error
		return strings.Contains(strings.ToLower(text), phrase)
	}
	return strings.Contains(strings.ToLower(string(r.body)), phrase)
}

func (r *response) failure(kind error, op, fallback string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Status:  r.status,
		Message: bodyMessage(r.body, fallback),
		Payload: string(r.body),
	}
}

func (c *Client) transportError(kind error, op string, err error, fallback string) *Error {
	timeout := isTimeout(err)
	c.logger.Warn("Backend request failed",
		zap.String("operation", op),
		zap.Bool("timeout", timeout),
		zap.Error(err))
	return &Error{Kind: kind, Op: op, Message: fallback, Timeout: timeout, Err: err}
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (*response, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		util.BackendRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	outcome = fmt.Sprintf("%dxx", res.StatusCode/100)
	return &response{status: res.StatusCode, body: raw}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// bodyMessage extracts operator-facing text from an error payload: the
// message or error field of a JSON object, a bare JSON string, or plain text.
func bodyMessage(body []byte, fallback string) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fallback
	}

	var obj errorBody
	if err := json.Unmarshal(body, &obj); err == nil {
		switch {
		case obj.Message != "":
			return obj.Message
		case obj.Error != "":
			return obj.Error
		}
		return fallback
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "<") {
		return fallback
	}
	return trimmed
}

// rawID accepts a transaction id sent either as a JSON string or a number
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
