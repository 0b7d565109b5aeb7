package worker

import (
	"context"

	"till-service/internal/broker"
	"till-service/internal/models"
	"till-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Journal is where settled sales and resets are recorded. Record methods
// report false when the event was already journaled.
type Journal interface {
	RecordSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) (bool, error)
	RecordReset(ctx context.Context, reset *models.Reset) (bool, error)
}

// Source delivers till events to a handler until ctx is cancelled
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// JournalWorker writes till events into the sales journal
type JournalWorker struct {
	source       Source
	journal      Journal
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewJournalWorker creates a new journal worker
func NewJournalWorker(source Source, journal Journal) *JournalWorker {
	w := &JournalWorker{
		source:       source,
		journal:      journal,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnSaleSettled(w.handleSaleSettled)
	w.eventHandler.OnTransactionReset(w.handleTransactionReset)
	return w
}

// Start starts the worker
func (w *JournalWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting journal worker")
	return w.source.StartConsuming(ctx, w.HandleMessage)
}

// HandleMessage journals one till event
func (w *JournalWorker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	ctx, span := util.StartSpan(ctx, "JournalWorker.HandleMessage")
	defer span.End()

	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *JournalWorker) Stop() error {
	w.logger.Info("Stopping journal worker")
	return w.source.Close()
}

func (w *JournalWorker) handleSaleSettled(ctx context.Context, event *models.SaleSettledEvent) error {
	sale := &models.Sale{
		EventID:   event.EventID,
		TillID:    event.TillID,
		SessionID: event.SessionID,
		Total:     event.Total,
		CashPaid:  event.CashPaid,
		Change:    event.Change,
		SettledAt: event.Timestamp,
	}

	lines := make([]models.SaleLine, 0, len(event.Lines))
	for _, l := range event.Lines {
		lines = append(lines, models.SaleLine{
			EventID:   event.EventID,
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	recorded, err := w.journal.RecordSale(ctx, sale, lines)
	if err != nil {
		return err
	}
	if !recorded {
		w.logger.Info("Sale already journaled, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	util.JournalEventsTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Info("Sale journaled",
		zap.String("event_id", event.EventID),
		zap.String("session_id", event.SessionID),
		zap.String("total", event.Total.String()))
	return nil
}

func (w *JournalWorker) handleTransactionReset(ctx context.Context, event *models.TransactionResetEvent) error {
	recorded, err := w.journal.RecordReset(ctx, &models.Reset{
		EventID:       event.EventID,
		TillID:        event.TillID,
		SessionID:     event.SessionID,
		TransactionID: event.TransactionID,
		ResetAt:       event.Timestamp,
	})
	if err != nil {
		return err
	}
	if !recorded {
		w.logger.Info("Reset already journaled, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	util.JournalEventsTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Info("Reset journaled",
		zap.String("event_id", event.EventID),
		zap.String("transaction_id", event.TransactionID))
	return nil
}
