package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"apflow/internal/invoice"
	"apflow/internal/services"
)

// TransitionRecord reports what a transition attempt did. Every attempt is
// logged; Applied is false when the invoice already reached a terminal status
// and its status field was left untouched.
type TransitionRecord struct {
	InvoiceID string         `json:"invoice_id"`
	From      invoice.Status `json:"from"`
	To        invoice.Status `json:"to"`
	Allowed   bool           `json:"allowed"`
	Applied   bool           `json:"applied"`
}

// Transition moves an invoice to the next status. The audit entry is written
// unconditionally, including for transitions the state table forbids; the
// status field itself only changes when the current status is not terminal.
// Both writes share one transaction.
func (s *Store) Transition(ctx context.Context, invoiceID string, next invoice.Status, actor, reason string) (*TransitionRecord, error) {
	ctx = ensureContext(ctx)

	var record *TransitionRecord
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return storeErr("begin transition tx", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM invoices WHERE id = ?`, invoiceID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transition %s: %w", invoiceID, services.ErrNotFound)
		}
		if err != nil {
			return storeErr("read current status", err)
		}

		from := invoice.Status(current)
		now := time.Now().UTC()
		rec := &TransitionRecord{
			InvoiceID: invoiceID,
			From:      from,
			To:        next,
			Allowed:   invoice.CanTransition(from, next),
			Applied:   !from.IsTerminal(),
		}

		if err := insertLogEntry(ctx, tx, LogEntry{
			InvoiceID:  invoiceID,
			Kind:       LogStatusChange,
			FromStatus: from,
			ToStatus:   next,
			Allowed:    rec.Allowed,
			Actor:      actor,
			Reason:     reason,
			CreatedAt:  now,
		}); err != nil {
			return storeErr("insert status change", err)
		}

		if rec.Applied && from != next {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
				string(next),
				now.Format(time.RFC3339Nano),
				invoiceID,
			); err != nil {
				return storeErr("update status", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return storeErr("commit transition", err)
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
