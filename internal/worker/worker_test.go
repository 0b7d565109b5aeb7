package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"till-service/internal/broker"
	"till-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	sales  map[string][]models.SaleLine
	resets map[string]*models.Reset
	err    error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{sales: make(map[string][]models.SaleLine), resets: make(map[string]*models.Reset)}
}

func (j *fakeJournal) RecordSale(_ context.Context, sale *models.Sale, lines []models.SaleLine) (bool, error) {
	if j.err != nil {
		return false, j.err
	}
	if _, ok := j.sales[sale.EventID]; ok {
		return false, nil
	}
	j.sales[sale.EventID] = lines
	return true, nil
}

func (j *fakeJournal) RecordReset(_ context.Context, reset *models.Reset) (bool, error) {
	if j.err != nil {
		return false, j.err
	}
	if _, ok := j.resets[reset.EventID]; ok {
		return false, nil
	}
	j.resets[reset.EventID] = reset
	return true, nil
}

type nopSource struct{}

func (nopSource) StartConsuming(context.Context, broker.MessageHandler) error { return nil }
func (nopSource) Close() error                                                { return nil }

func message(t *testing.T, event any) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestJournalWorkerRecordsSaleOnce(t *testing.T) {
	journal := newFakeJournal()
	w := NewJournalWorker(nopSource{}, journal)

	msg := message(t, &models.SaleSettledEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeSaleSettled, Timestamp: time.Now()},
		TillID:    "till-1",
		SessionID: "txn_a_1",
		Lines: []models.CartLine{
			{ProductID: 1, Name: "Brownie", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 3},
			{ProductID: 4, Name: "Scarf", UnitPrice: decimal.RequireFromString("4"), Quantity: 1},
		},
		Total:    decimal.RequireFromString("11.50"),
		CashPaid: decimal.RequireFromString("20"),
		Change:   decimal.RequireFromString("8.50"),
	})

	require.NoError(t, w.HandleMessage(context.Background(), msg))
	require.NoError(t, w.HandleMessage(context.Background(), msg))

	require.Len(t, journal.sales, 1)
	lines := journal.sales["evt-1"]
	require.Len(t, lines, 2)
	assert.Equal(t, "evt-1", lines[0].EventID)
	assert.Equal(t, int64(4), lines[1].ProductID)
}

func TestJournalWorkerRecordsReset(t *testing.T) {
	journal := newFakeJournal()
	w := NewJournalWorker(nopSource{}, journal)

	require.NoError(t, w.HandleMessage(context.Background(), message(t, &models.TransactionResetEvent{
		BaseEvent:     models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeTransactionReset},
		TillID:        "till-1",
		SessionID:     "txn_b_2",
		TransactionID: "T-7",
	})))

	require.Contains(t, journal.resets, "evt-2")
	assert.Equal(t, "T-7", journal.resets["evt-2"].TransactionID)
}

func TestJournalWorkerSurfacesJournalErrors(t *testing.T) {
	journal := newFakeJournal()
	journal.err = errors.New("connection refused")
	w := NewJournalWorker(nopSource{}, journal)

	err := w.HandleMessage(context.Background(), message(t, &models.TransactionResetEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeTransactionReset},
	}))
	assert.ErrorContains(t, err, "connection refused")
}
