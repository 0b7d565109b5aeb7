package service

import (
	"context"

	"till-service/internal/models"

	"github.com/shopspring/decimal"
)

// TransactionClient is the backend boundary the till settles against.
type TransactionClient interface {
	FetchCatalog(ctx context.Context) ([]models.Product, error)
	AddToCart(ctx context.Context, sessionID string, productID int64) (int, error)
	Checkout(ctx context.Context, sessionID string, items []models.CheckoutItem, cashPaid decimal.Decimal) (decimal.Decimal, error)
	ResolveTransactionID(ctx context.Context, sessionID string) (string, error)
	Reset(ctx context.Context, transactionID string) error
}

// SessionProvider owns the session token carried by every transaction request.
// Current and Expire must not block on I/O; they are called with the
// controller's lock held.
type SessionProvider interface {
	GetOrCreateSessionToken(ctx context.Context) string
	Current() string
	Expire()
	ClearExpired(ctx context.Context)
}

// CartStore keeps a snapshot of the cart so a restarted till can pick it up.
type CartStore interface {
	SaveCart(ctx context.Context, sessionID string, lines []models.CartLine) error
	LoadCart(ctx context.Context, sessionID string) ([]models.CartLine, error)
	DeleteCart(ctx context.Context, sessionID string) error
}

// EventPublisher announces settled and reset transactions.
type EventPublisher interface {
	PublishSaleSettled(ctx context.Context, event *models.SaleSettledEvent) error
	PublishTransactionReset(ctx context.Context, event *models.TransactionResetEvent) error
}

type noopCartStore struct{}

func (noopCartStore) SaveCart(context.Context, string, []models.CartLine) error { return nil }
func (noopCartStore) LoadCart(context.Context, string) ([]models.CartLine, error) {
	return nil, nil
}
func (noopCartStore) DeleteCart(context.Context, string) error { return nil }

type noopPublisher struct{}

func (noopPublisher) PublishSaleSettled(context.Context, *models.SaleSettledEvent) error { return nil }
func (noopPublisher) PublishTransactionReset(context.Context, *models.TransactionResetEvent) error {
	return nil
}
