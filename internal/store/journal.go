package store

import (
	"context"
	"fmt"
	"time"

	"till-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// claimEvent records eventID in processed_events inside tx. It reports false
// when the event was already journaled.
func claimEvent(ctx context.Context, tx *sqlx.Tx, eventID, eventType string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordSale journals a settled sale and its lines in one transaction. It
// returns false without writing anything if the event was already recorded.
func (s *Store) RecordSale(ctx context.Context, sale *models.Sale, lines []models.SaleLine) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	claimed, err := claimEvent(ctx, tx, sale.EventID, models.EventTypeSaleSettled)
	if err != nil || !claimed {
		return false, err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO till_sales (event_id, till_id, session_id, total, cash_paid, change_due, settled_at)
		VALUES (:event_id, :till_id, :session_id, :total, :cash_paid, :change_due, :settled_at)`, sale)
	if err != nil {
		return false, fmt.Errorf("failed to insert sale: %w", err)
	}

	for i := range lines {
		lines[i].EventID = sale.EventID
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO till_sale_lines (event_id, product_id, name, unit_price, quantity)
			VALUES (:event_id, :product_id, :name, :unit_price, :quantity)`, lines[i])
		if err != nil {
			return false, fmt.Errorf("failed to insert sale line for product %d: %w", lines[i].ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RecordReset journals a released transaction
func (s *Store) RecordReset(ctx context.Context, reset *models.Reset) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	claimed, err := claimEvent(ctx, tx, reset.EventID, models.EventTypeTransactionReset)
	if err != nil || !claimed {
		return false, err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO till_resets (event_id, till_id, session_id, transaction_id, reset_at)
		VALUES (:event_id, :till_id, :session_id, :transaction_id, :reset_at)`, reset)
	if err != nil {
		return false, fmt.Errorf("failed to insert reset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// GetSaleLines retrieves the lines of a journaled sale
func (s *Store) GetSaleLines(ctx context.Context, eventID string) ([]models.SaleLine, error) {
	var lines []models.SaleLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM till_sale_lines WHERE event_id = $1 ORDER BY product_id", eventID)
	return lines, err
}

// Summary aggregates one till's journal over [from, to)
func (s *Store) Summary(ctx context.Context, tillID string, from, to time.Time) (*models.SalesSummary, error) {
	summary := models.SalesSummary{TillID: tillID, From: from, To: to}

	err := s.db.GetContext(ctx, &summary, `
		SELECT COUNT(*) AS sales, COALESCE(SUM(total), 0) AS revenue, COALESCE(SUM(change_due), 0) AS change_given
		FROM till_sales
		WHERE till_id = $1 AND settled_at >= $2 AND settled_at < $3`,
		tillID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize sales: %w", err)
	}

	err = s.db.GetContext(ctx, &summary.Resets,
		"SELECT COUNT(*) FROM till_resets WHERE till_id = $1 AND reset_at >= $2 AND reset_at < $3",
		tillID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count resets: %w", err)
	}

	return &summary, nil
}
