package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleSettled      = "SALE_SETTLED"
	EventTypeTransactionReset = "TRANSACTION_RESET"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleSettledEvent published when a checkout succeeds
type SaleSettledEvent struct {
	BaseEvent
	TillID    string          `json:"till_id"`
	SessionID string          `json:"session_id"`
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	CashPaid  decimal.Decimal `json:"cash_paid"`
	Change    decimal.Decimal `json:"change"`
}

// TransactionResetEvent published when a pending transaction is released
type TransactionResetEvent struct {
	BaseEvent
	TillID        string `json:"till_id"`
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
}
