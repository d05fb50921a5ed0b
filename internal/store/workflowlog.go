package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"apflow/internal/agent"
	"apflow/internal/invoice"
)

// LogKind classifies workflow log entries.
type LogKind string

const (
	LogAgentResponse   LogKind = "agent_response"
	LogStatusChange    LogKind = "status_change"
	LogHumanResolution LogKind = "human_resolution"
)

// LogEntry is one immutable record in an invoice's audit trail. Entries are
// ordered by their auto-increment id.
type LogEntry struct {
	ID         int64           `json:"id"`
	InvoiceID  string          `json:"invoice_id"`
	Kind       LogKind         `json:"kind"`
	Agent      string          `json:"agent,omitempty"`
	FromStatus invoice.Status  `json:"from_status,omitempty"`
	ToStatus   invoice.Status  `json:"to_status,omitempty"`
	Allowed    bool            `json:"allowed"`
	Actor      string          `json:"actor,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

const logColumns = "id, invoice_id, kind, agent, from_status, to_status, allowed, actor, reason, payload_json, created_at"

// execer lets log inserts run against the pool or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLogEntry(ctx context.Context, db execer, entry LogEntry) error {
	allowed := 0
	if entry.Allowed {
		allowed = 1
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var payload any
	if len(entry.Payload) > 0 {
		payload = string(entry.Payload)
	}
	_, err := db.ExecContext(
		ctx,
		`INSERT INTO workflow_log (
            invoice_id, kind, agent, from_status, to_status, allowed, actor, reason, payload_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.InvoiceID,
		string(entry.Kind),
		nullableString(entry.Agent),
		nullableString(string(entry.FromStatus)),
		nullableString(string(entry.ToStatus)),
		allowed,
		nullableString(entry.Actor),
		nullableString(entry.Reason),
		payload,
		createdAt.Format(time.RFC3339Nano),
	)
	return err
}

// AppendResponse appends a stage response envelope to the invoice's log.
func (s *Store) AppendResponse(ctx context.Context, invoiceID string, resp agent.Response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	entry := LogEntry{
		InvoiceID: invoiceID,
		Kind:      LogAgentResponse,
		Agent:     resp.Agent,
		Allowed:   true,
		Payload:   encoded,
		CreatedAt: resp.Timestamp,
	}
	if err := retryOnBusy(ensureContext(ctx), func() error {
		return insertLogEntry(ensureContext(ctx), s.db, entry)
	}); err != nil {
		return storeErr("append response", err)
	}
	return nil
}

// AppendHumanResolution records an approve or reject decision made by a
// person, with optional free-form notes.
func (s *Store) AppendHumanResolution(ctx context.Context, invoiceID, actor, decision, notes string) error {
	payload, err := json.Marshal(map[string]string{
		"decision": decision,
		"notes":    notes,
	})
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	entry := LogEntry{
		InvoiceID: invoiceID,
		Kind:      LogHumanResolution,
		Allowed:   true,
		Actor:     actor,
		Reason:    decision,
		Payload:   payload,
	}
	if err := retryOnBusy(ensureContext(ctx), func() error {
		return insertLogEntry(ensureContext(ctx), s.db, entry)
	}); err != nil {
		return storeErr("append resolution", err)
	}
	return nil
}

func scanLogEntry(scanner interface{ Scan(dest ...any) error }) (*LogEntry, error) {
	var (
		id         int64
		invoiceID  string
		kind       string
		agentName  sql.NullString
		fromStatus sql.NullString
		toStatus   sql.NullString
		allowed    sql.NullInt64
		actor      sql.NullString
		reason     sql.NullString
		payload    sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&invoiceID,
		&kind,
		&agentName,
		&fromStatus,
		&toStatus,
		&allowed,
		&actor,
		&reason,
		&payload,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &LogEntry{
		ID:         id,
		InvoiceID:  invoiceID,
		Kind:       LogKind(kind),
		Agent:      agentName.String,
		FromStatus: invoice.Status(fromStatus.String),
		ToStatus:   invoice.Status(toStatus.String),
		Allowed:    allowed.Valid && allowed.Int64 != 0,
		Actor:      actor.String,
		Reason:     reason.String,
	}
	if payload.Valid && payload.String != "" {
		entry.Payload = json.RawMessage(payload.String)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

// Entries returns the full workflow log for an invoice in append order.
func (s *Store) Entries(ctx context.Context, invoiceID string) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+logColumns+` FROM workflow_log WHERE invoice_id = ? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, storeErr("list log entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, storeErr("scan log entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate log entries", err)
	}
	return entries, nil
}

// LastStatusChange returns the most recent status change entry for an
// invoice, or (nil, nil) when none exists.
func (s *Store) LastStatusChange(ctx context.Context, invoiceID string) (*LogEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+logColumns+` FROM workflow_log WHERE invoice_id = ? AND kind = ? ORDER BY id DESC LIMIT 1`,
		invoiceID, string(LogStatusChange))
	entry, err := scanLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last status change", err)
	}
	return entry, nil
}
