package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"apflow/internal/invoice"
)

const invoiceColumns = "id, invoice_ref, invoice_date, vendor_number, currency, amount, po_number, buyer_company_code, items_json, status, created_at, updated_at"

func scanInvoice(scanner interface{ Scan(dest ...any) error }) (*invoice.Invoice, error) {
	var (
		id         string
		ref        sql.NullString
		date       sql.NullString
		vendor     sql.NullString
		currency   sql.NullString
		amount     sql.NullFloat64
		poNumber   sql.NullString
		company    sql.NullString
		itemsJSON  sql.NullString
		status     string
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&ref,
		&date,
		&vendor,
		&currency,
		&amount,
		&poNumber,
		&company,
		&itemsJSON,
		&status,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID: id,
		Header: invoice.Header{
			InvoiceRef:       ref.String,
			InvoiceDate:      date.String,
			VendorNumber:     vendor.String,
			Currency:         currency.String,
			Amount:           amount.Float64,
			PONumber:         poNumber.String,
			BuyerCompanyCode: company.String,
		},
		Status: invoice.Status(status),
	}
	if itemsJSON.Valid && itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &inv.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		inv.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		inv.UpdatedAt = updated
	}
	return inv, nil
}

// CreateInvoice inserts a freshly normalized invoice together with its
// initial status change entry in one transaction, so an invoice never exists
// without an audit trail.
func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice, actor string) error {
	ctx = ensureContext(ctx)

	existing, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrInvoiceExists, inv.ID)
	}

	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return storeErr("begin ingest tx", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID,
			inv.Header.InvoiceRef,
			inv.Header.InvoiceDate,
			inv.Header.VendorNumber,
			inv.Header.Currency,
			inv.Header.Amount,
			inv.Header.PONumber,
			inv.Header.BuyerCompanyCode,
			string(itemsJSON),
			string(inv.Status),
			timestamp,
			timestamp,
		); err != nil {
			return storeErr("insert invoice", err)
		}

		if err := insertLogEntry(ctx, tx, LogEntry{
			InvoiceID: inv.ID,
			Kind:      LogStatusChange,
			ToStatus:  inv.Status,
			Allowed:   true,
			Actor:     actor,
			Reason:    "ingested",
			CreatedAt: now,
		}); err != nil {
			return storeErr("insert initial log entry", err)
		}

		if err := tx.Commit(); err != nil {
			return storeErr("commit ingest", err)
		}
		inv.CreatedAt = now
		inv.UpdatedAt = now
		return nil
	})
}

// GetInvoice fetches an invoice by id. Missing invoices return (nil, nil).
func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get invoice", err)
	}
	return inv, nil
}

// InvoiceFilter narrows ListInvoices. Zero values match everything.
type InvoiceFilter struct {
	Status invoice.Status
	Limit  int
}

// ListInvoices returns invoices matching the filter, newest first.
func (s *Store) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*invoice.Invoice, error) {
	clauses := make([]string, 0, 1)
	args := make([]any, 0, 2)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, storeErr("list invoices", err)
	}
	defer func() { _ = rows.Close() }()

	var invoices []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, storeErr("scan invoice", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate invoices", err)
	}
	return invoices, nil
}

// InvoiceStatusCounts returns the number of invoices per lifecycle status.
func (s *Store) InvoiceStatusCounts(ctx context.Context) (map[invoice.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM invoices GROUP BY status`)
	if err != nil {
		return nil, storeErr("count invoices", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[invoice.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeErr("scan invoice count", err)
		}
		counts[invoice.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate invoice counts", err)
	}
	return counts, nil
}
