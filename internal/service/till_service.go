package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"till-service/internal/cart"
	"till-service/internal/models"
	"till-service/internal/txclient"
	"till-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	msgCatalogUnavailable = "Failed to load products"
	msgOutOfStock         = "This product is out of stock!"
	msgAddFailed          = "Could not add product to cart"
	msgCheckoutFailed     = "Checkout failed"
	msgResetFailed        = "Failed to reset transaction."
)

// TillService reconciles the till's local cart with the backend's stock
// ledger. It is the only writer of till state: boundary calls run without the
// lock held, and their results are applied only if no checkout or reset
// completed while they were in flight.
type TillService struct {
	client   TransactionClient
	sessions SessionProvider
	carts    CartStore
	events   EventPublisher
	tillID   string
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	state    cart.State
	cashPaid string
	change   *decimal.Decimal
	errMsg   string
	notice   string

	// epoch advances whenever a checkout or reset completes; results issued
	// under an older epoch are discarded.
	epoch uint64
	// seq orders stock-bearing requests; a catalog refresh never overwrites a
	// quantity echoed by an add issued after it.
	seq         uint64
	stockSeq    map[int64]uint64
	catalogSeq  uint64
	pendingAdds int
	settling    bool
	resetting   bool

	// snapshotVersion orders cart snapshot writes, which run without mu.
	snapshotVersion uint64
	persistMu       sync.Mutex
	persisted       uint64
}

// Options configures a TillService
type Options struct {
	TillID         string
	RequestTimeout time.Duration
	Carts          CartStore
	Events         EventPublisher
}

// NewTillService creates the till controller with an empty catalog; call Init
// to load it.
func NewTillService(client TransactionClient, sessions SessionProvider, opts Options) *TillService {
	carts := opts.Carts
	if carts == nil {
		carts = noopCartStore{}
	}
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}

	return &TillService{
		client:   client,
		sessions: sessions,
		carts:    carts,
		events:   events,
		tillID:   opts.TillID,
		timeout:  opts.RequestTimeout,
		logger:   util.GetLogger(),
		state:    cart.New(nil),
		stockSeq: make(map[int64]uint64),
	}
}

// Init loads the catalog and restores any cart snapshot saved for the current
// session. A catalog failure leaves the catalog empty and is surfaced in the
// view; the till stays usable for a later refresh.
func (s *TillService) Init(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "TillService.Init")
	defer span.End()

	token := s.sessions.GetOrCreateSessionToken(ctx)
	lines, err := s.carts.LoadCart(ctx, token)
	if err != nil {
		s.logger.Warn("Failed to restore cart snapshot", zap.String("session_id", token), zap.Error(err))
	}

	s.mu.Lock()
	s.state = s.state.WithLines(lines)
	util.CartLines.Set(float64(len(s.state.Lines())))
	s.mu.Unlock()

	if len(lines) > 0 {
		s.logger.Info("Cart snapshot restored",
			zap.String("session_id", token),
			zap.Int("lines", len(lines)))
	}

	return s.RefreshCatalog(ctx)
}

// RefreshCatalog refetches products and replaces the cached stock.
func (s *TillService) RefreshCatalog(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "TillService.RefreshCatalog")
	defer span.End()

	s.mu.Lock()
	s.seq++
	issued := s.seq
	s.mu.Unlock()

	callCtx, cancel := s.withTimeout(ctx)
	products, err := s.client.FetchCatalog(callCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.errMsg = msgCatalogUnavailable
		s.logger.Error("Failed to fetch catalog", zap.Error(err))
		return fmt.Errorf("fetch catalog: %w", err)
	}

	s.applyCatalog(issued, products)
	if s.errMsg == msgCatalogUnavailable {
		s.errMsg = ""
	}
	return nil
}

// AddItem asks the backend for one unit of productID and, once confirmed,
// adds it to the cart and echoes the backend's remaining stock.
func (s *TillService) AddItem(ctx context.Context, productID int64) (View, error) {
	ctx, span := util.StartSpan(ctx, "TillService.AddItem")
	defer span.End()

	token := s.sessions.GetOrCreateSessionToken(ctx)

	s.mu.Lock()
	if s.settling || s.resetting {
		s.mu.Unlock()
		return s.View(), ErrBusy
	}
	product, ok := s.state.Product(productID)
	if !ok {
		s.mu.Unlock()
		return s.View(), fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	if product.Quantity <= 0 {
		s.notice = msgOutOfStock
		s.mu.Unlock()
		util.AddToCartTotal.WithLabelValues("out_of_stock").Inc()
		return s.View(), txclient.ErrOutOfStock
	}
	if token != s.sessions.Current() {
		s.mu.Unlock()
		return s.View(), ErrStaleResult
	}

	epoch := s.epoch
	s.seq++
	issued := s.seq
	s.pendingAdds++
	s.mu.Unlock()

	callCtx, cancel := s.withTimeout(ctx)
	remaining, err := s.client.AddToCart(callCtx, token, productID)
	cancel()

	view, snap, err := s.applyAdd(token, epoch, issued, productID, remaining, err)
	if snap != nil {
		s.persist(ctx, *snap)
	}
	return view, err
}

// applyAdd folds one add-to-cart result into the state and returns the cart
// snapshot to persist, if any.
func (s *TillService) applyAdd(token string, epoch, issued uint64, productID int64, remaining int, err error) (View, *snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAdds--

	if s.isStale(token, epoch) {
		util.StaleResultsDiscarded.WithLabelValues("add_to_cart").Inc()
		s.logger.Warn("Discarding add-to-cart result for a finished session",
			zap.String("session_id", token),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return s.viewLocked(), nil, ErrStaleResult
	}

	if err != nil {
		if errors.Is(err, txclient.ErrOutOfStock) {
			s.notice = txclient.Message(err, msgOutOfStock)
			util.AddToCartTotal.WithLabelValues("out_of_stock").Inc()
		} else {
			s.notice = txclient.Message(err, msgAddFailed)
			util.AddToCartTotal.WithLabelValues("failed").Inc()
		}
		s.logger.Warn("Add to cart rejected",
			zap.String("session_id", token),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return s.viewLocked(), nil, err
	}

	// Within an epoch stock only goes down between catalog refreshes, so the
	// lowest echo is the newest whatever order the responses arrive in. A
	// catalog requested after this add already counts it.
	if current, ok := s.state.Product(productID); ok && (issued < s.catalogSeq || current.Quantity < remaining) {
		remaining = current.Quantity
	}

	next, err := s.state.ApplyAdd(productID, remaining)
	if err != nil {
		// The product left the catalog while the request was in flight.
		s.notice = msgAddFailed
		util.AddToCartTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Confirmed add could not be applied",
			zap.String("session_id", token),
			zap.Int64("product_id", productID),
			zap.Error(err))
		return s.viewLocked(), nil, err
	}

	s.state = next
	if issued > s.stockSeq[productID] {
		s.stockSeq[productID] = issued
	}
	s.change = nil
	s.notice = ""
	util.AddToCartTotal.WithLabelValues("success").Inc()
	util.CartLines.Set(float64(len(s.state.Lines())))

	snap := s.snapshotLocked(token, false)
	return s.viewLocked(), &snap, nil
}

// SetCashPaid records the operator's cash entry for the next checkout.
func (s *TillService) SetCashPaid(cash string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settling {
		return s.viewLocked(), ErrCheckoutInFlight
	}
	s.cashPaid = strings.TrimSpace(cash)
	return s.viewLocked(), nil
}

// Checkout settles the cart against the cash entry. On success the cart and
// cash are cleared and the change due is shown; on failure the cart stays as
// it was and the backend's message is shown.
func (s *TillService) Checkout(ctx context.Context) (View, error) {
	ctx, span := util.StartSpan(ctx, "TillService.Checkout")
	defer span.End()

	token := s.sessions.GetOrCreateSessionToken(ctx)

	s.mu.Lock()
	switch {
	case s.settling:
		s.mu.Unlock()
		return s.View(), ErrCheckoutInFlight
	case s.resetting || s.pendingAdds > 0:
		s.mu.Unlock()
		return s.View(), ErrBusy
	case s.state.IsEmpty():
		s.mu.Unlock()
		return s.View(), ErrEmptyCart
	case s.cashPaid == "":
		s.mu.Unlock()
		return s.View(), ErrCashRequired
	case token != s.sessions.Current():
		s.mu.Unlock()
		return s.View(), ErrStaleResult
	}

	cash, err := decimal.NewFromString(s.cashPaid)
	if err != nil || cash.IsNegative() {
		s.mu.Unlock()
		return s.View(), fmt.Errorf("%w: %q", ErrInvalidCash, s.cashPaid)
	}

	s.settling = true
	epoch := s.epoch
	lines := s.state.Lines()
	items := s.state.Items()
	total := s.state.Total()
	s.mu.Unlock()

	callCtx, cancel := s.withTimeout(ctx)
	change, err := s.client.Checkout(callCtx, token, items, cash)
	cancel()

	s.mu.Lock()
	s.settling = false

	if s.isStale(token, epoch) {
		util.StaleResultsDiscarded.WithLabelValues("checkout").Inc()
		s.logger.Error("Discarding checkout result for a finished session",
			zap.String("session_id", token),
			zap.String("change", change.String()),
			zap.Error(err))
		view := s.viewLocked()
		s.mu.Unlock()
		return view, ErrStaleResult
	}

	if err != nil {
		s.errMsg = txclient.Message(err, msgCheckoutFailed)
		result := "failed"
		if errors.Is(err, txclient.ErrInsufficientPayment) {
			result = "insufficient_payment"
		}
		util.CheckoutsTotal.WithLabelValues(result).Inc()
		s.logger.Warn("Checkout failed",
			zap.String("session_id", token),
			zap.String("total", total.String()),
			zap.Error(err))
		view := s.viewLocked()
		s.mu.Unlock()
		return view, err
	}

	s.state = s.state.Clear()
	s.change = &change
	s.cashPaid = ""
	s.errMsg = ""
	s.notice = ""
	s.epoch++
	s.sessions.Expire()
	snap := s.snapshotLocked(token, true)
	util.CheckoutsTotal.WithLabelValues("success").Inc()
	util.CartLines.Set(0)
	view := s.viewLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.sessions.ClearExpired(ctx)

	s.logger.Info("Sale settled",
		zap.String("session_id", token),
		zap.String("total", total.String()),
		zap.String("cash_paid", cash.String()),
		zap.String("change", change.String()))

	event := &models.SaleSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleSettled,
			Timestamp: time.Now(),
		},
		TillID:    s.tillID,
		SessionID: token,
		Lines:     lines,
		Total:     total,
		CashPaid:  cash,
		Change:    change,
	}
	if err := s.events.PublishSaleSettled(ctx, event); err != nil {
		s.logger.Error("Failed to publish SaleSettled event", zap.Error(err))
	}

	return view, nil
}

// Reset releases the pending transaction's stock on the backend, clears the
// cart and refetches the catalog. If either backend step fails the cart is
// left untouched.
func (s *TillService) Reset(ctx context.Context) (View, error) {
	ctx, span := util.StartSpan(ctx, "TillService.Reset")
	defer span.End()

	token := s.sessions.GetOrCreateSessionToken(ctx)

	s.mu.Lock()
	if s.resetting {
		s.mu.Unlock()
		return s.View(), ErrResetInFlight
	}
	if token != s.sessions.Current() {
		s.mu.Unlock()
		return s.View(), ErrStaleResult
	}
	s.resetting = true
	s.mu.Unlock()

	transactionID, err := s.releaseTransaction(ctx, token)

	s.mu.Lock()
	s.resetting = false

	if err != nil {
		s.errMsg = msgResetFailed
		result := "failed"
		if errors.Is(err, txclient.ErrUnknownSession) {
			result = "unknown_session"
		}
		util.ResetsTotal.WithLabelValues(result).Inc()
		s.logger.Warn("Reset failed", zap.String("session_id", token), zap.Error(err))
		view := s.viewLocked()
		s.mu.Unlock()
		return view, err
	}

	s.state = s.state.Clear()
	s.change = nil
	s.cashPaid = ""
	s.errMsg = ""
	s.notice = ""
	s.epoch++
	s.sessions.Expire()
	snap := s.snapshotLocked(token, true)
	util.ResetsTotal.WithLabelValues("success").Inc()
	util.CartLines.Set(0)
	s.mu.Unlock()

	s.persist(ctx, snap)
	s.sessions.ClearExpired(ctx)

	s.logger.Info("Transaction reset",
		zap.String("session_id", token),
		zap.String("transaction_id", transactionID))

	event := &models.TransactionResetEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTransactionReset,
			Timestamp: time.Now(),
		},
		TillID:        s.tillID,
		SessionID:     token,
		TransactionID: transactionID,
	}
	if err := s.events.PublishTransactionReset(ctx, event); err != nil {
		s.logger.Error("Failed to publish TransactionReset event", zap.Error(err))
	}

	if err := s.RefreshCatalog(ctx); err != nil {
		s.logger.Warn("Catalog refresh after reset failed", zap.Error(err))
	}
	return s.View(), nil
}

// Acknowledge dismisses the change, error and notice currently shown.
func (s *TillService) Acknowledge() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.change = nil
	s.errMsg = ""
	s.notice = ""
	return s.viewLocked()
}

// View returns a snapshot of the till state.
func (s *TillService) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *TillService) releaseTransaction(ctx context.Context, token string) (string, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	transactionID, err := s.client.ResolveTransactionID(callCtx, token)
	if err != nil {
		return "", fmt.Errorf("resolve transaction id: %w", err)
	}

	resetCtx, resetCancel := s.withTimeout(ctx)
	defer resetCancel()

	if err := s.client.Reset(resetCtx, transactionID); err != nil {
		return "", fmt.Errorf("reset transaction %s: %w", transactionID, err)
	}
	return transactionID, nil
}

// applyCatalog replaces the cached catalog, keeping any product quantity that
// a newer request already echoed. Caller holds mu.
func (s *TillService) applyCatalog(issued uint64, products []models.Product) {
	merged := make([]models.Product, len(products))
	for i, p := range products {
		if s.stockSeq[p.ID] > issued {
			if current, ok := s.state.Product(p.ID); ok {
				p.Quantity = current.Quantity
			}
		} else {
			s.stockSeq[p.ID] = issued
		}
		merged[i] = p
	}
	s.state = s.state.WithCatalog(merged)
	if issued > s.catalogSeq {
		s.catalogSeq = issued
	}
}

// isStale reports whether a result issued under token and epoch no longer
// belongs to the current session. Caller holds mu.
func (s *TillService) isStale(token string, epoch uint64) bool {
	return epoch != s.epoch || token != s.sessions.Current()
}

// snapshot is a cart state captured under mu for writing after it is released.
type snapshot struct {
	token   string
	lines   []models.CartLine
	remove  bool
	version uint64
}

// Caller holds mu.
func (s *TillService) snapshotLocked(token string, remove bool) snapshot {
	s.snapshotVersion++
	snap := snapshot{token: token, remove: remove, version: s.snapshotVersion}
	if !remove {
		snap.lines = s.state.Lines()
	}
	return snap
}

// persist writes snap unless a newer snapshot already went out; failures only
// cost crash recovery. Caller must not hold mu.
func (s *TillService) persist(ctx context.Context, snap snapshot) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if snap.version <= s.persisted {
		return
	}
	s.persisted = snap.version

	if snap.remove {
		if err := s.carts.DeleteCart(ctx, snap.token); err != nil {
			s.logger.Warn("Failed to delete cart snapshot", zap.String("session_id", snap.token), zap.Error(err))
		}
		return
	}
	if err := s.carts.SaveCart(ctx, snap.token, snap.lines); err != nil {
		s.logger.Warn("Failed to save cart snapshot", zap.String("session_id", snap.token), zap.Error(err))
	}
}

func (s *TillService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Caller holds mu.
func (s *TillService) viewLocked() View {
	v := View{
		SessionID: s.sessions.Current(),
		Products:  s.state.Products(),
		Lines:     s.state.Lines(),
		Total:     s.state.Total(),
		CashPaid:  s.cashPaid,
		Error:     s.errMsg,
		Notice:    s.notice,
	}
	if s.change != nil {
		change := *s.change
		v.Change = &change
	}

	switch {
	case s.resetting:
		v.Phase = PhaseResetting
	case s.settling:
		v.Phase = PhaseSettling
	case !s.state.IsEmpty():
		v.Phase = PhaseAccumulating
	case s.change != nil:
		v.Phase = PhaseSettled
	default:
		v.Phase = PhaseIdle
	}
	return v
}
