package service

import (
	"till-service/internal/models"

	"github.com/shopspring/decimal"
)

// Phase is the lifecycle position of the till's current transaction.
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseAccumulating Phase = "ACCUMULATING"
	PhaseSettling     Phase = "SETTLING"
	PhaseSettled      Phase = "SETTLED"
	PhaseResetting    Phase = "RESETTING"
)

// View is a read-only copy of the till state for the presentation layer.
type View struct {
	Phase     Phase
	SessionID string
	Products  []models.Product
	Lines     []models.CartLine
	Total     decimal.Decimal
	CashPaid  string
	Change    *decimal.Decimal
	Error     string
	Notice    string
}
