package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by the backend
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	ImageURL string          `json:"imageUrl"`
}

// CartLine is one product accumulated in the till's cart
type CartLine struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal returns unit price times quantity
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CheckoutItem is a line as sent to the checkout endpoint
type CheckoutItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Sale is a settled transaction as recorded in the sales journal
type Sale struct {
	EventID   string          `db:"event_id" json:"event_id"`
	TillID    string          `db:"till_id" json:"till_id"`
	SessionID string          `db:"session_id" json:"session_id"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CashPaid  decimal.Decimal `db:"cash_paid" json:"cash_paid"`
	Change    decimal.Decimal `db:"change_due" json:"change_due"`
	SettledAt time.Time       `db:"settled_at" json:"settled_at"`
}

// SaleLine is one line of a journaled sale
type SaleLine struct {
	EventID   string          `db:"event_id" json:"event_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Quantity  int             `db:"quantity" json:"quantity"`
}

// Reset is a released transaction as recorded in the sales journal
type Reset struct {
	EventID       string    `db:"event_id" json:"event_id"`
	TillID        string    `db:"till_id" json:"till_id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	ResetAt       time.Time `db:"reset_at" json:"reset_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// SalesSummary aggregates a till's journal over a time window
type SalesSummary struct {
	TillID      string          `db:"-" json:"till_id"`
	From        time.Time       `db:"-" json:"from"`
	To          time.Time       `db:"-" json:"to"`
	Sales       int             `db:"sales" json:"sales"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
	ChangeGiven decimal.Decimal `db:"change_given" json:"change_given"`
	Resets      int             `db:"resets" json:"resets"`
}
