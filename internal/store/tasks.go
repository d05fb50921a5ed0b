package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType distinguishes pipeline work from tasks awaiting a human decision.
type TaskType string

const (
	TaskProcessInvoice TaskType = "process_invoice"
	TaskHumanReview    TaskType = "human_review"
	TaskApproval       TaskType = "approval"
)

// TaskStatus is the task queue lifecycle.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskDone       TaskStatus = "done"
	TaskError      TaskStatus = "error"
)

// Task is one unit of queued work bound to an invoice.
type Task struct {
	ID           string          `json:"id"`
	Type         TaskType        `json:"type"`
	InvoiceID    string          `json:"invoice_id"`
	Status       TaskStatus      `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

const taskColumns = "id, type, invoice_id, status, payload_json, error_message, created_at, started_at, finished_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          string
		taskType    string
		invoiceID   string
		status      string
		payload     sql.NullString
		errMessage  sql.NullString
		createdRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&taskType,
		&invoiceID,
		&status,
		&payload,
		&errMessage,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		Type:         TaskType(taskType),
		InvoiceID:    invoiceID,
		Status:       TaskStatus(status),
		ErrorMessage: errMessage.String,
	}
	if payload.Valid && payload.String != "" {
		task.Payload = json.RawMessage(payload.String)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			task.FinishedAt = &finished
		}
	}
	return task, nil
}

// EnqueueTask inserts a queued task for the invoice. The payload may be nil.
func (s *Store) EnqueueTask(ctx context.Context, taskType TaskType, invoiceID string, payload any) (*Task, error) {
	var payloadJSON any
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal task payload: %w", err)
		}
		payloadJSON = string(encoded)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (id, type, invoice_id, status, payload_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		string(taskType),
		invoiceID,
		string(TaskQueued),
		payloadJSON,
		now,
	); err != nil {
		return nil, storeErr("enqueue task", err)
	}
	return s.GetTask(ctx, id)
}

// ClaimNext atomically claims the oldest queued task of one of the given
// types. It returns (nil, nil) when the queue is empty and ErrClaimConflict
// when another worker won the race for the selected candidate.
func (s *Store) ClaimNext(ctx context.Context, types ...TaskType) (*Task, error) {
	if len(types) == 0 {
		return nil, errors.New("claim requires at least one task type")
	}
	ctx = ensureContext(ctx)

	args := make([]any, 0, len(types)+1)
	args = append(args, string(TaskQueued))
	for _, taskType := range types {
		args = append(args, string(taskType))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ? AND type IN (` +
		makePlaceholders(len(types)) + `) ORDER BY created_at, id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	candidate, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("select claim candidate", err)
	}

	started := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(TaskProcessing),
		started.Format(time.RFC3339Nano),
		candidate.ID,
		string(TaskQueued),
	)
	if err != nil {
		return nil, storeErr("claim task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("claim rows affected", err)
	}
	if affected == 0 {
		return nil, ErrClaimConflict
	}

	candidate.Status = TaskProcessing
	candidate.StartedAt = &started
	return candidate, nil
}

// MarkTaskDone finishes a task successfully.
func (s *Store) MarkTaskDone(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, error_message = NULL WHERE id = ?`,
		string(TaskDone),
		now,
		id,
	); err != nil {
		return storeErr("mark task done", err)
	}
	return nil
}

// MarkTaskError finishes a task with a failure message.
func (s *Store) MarkTaskError(ctx context.Context, id, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		string(TaskError),
		now,
		nullableString(message),
		id,
	); err != nil {
		return storeErr("mark task error", err)
	}
	return nil
}

// RequeueStale returns processing tasks whose claim is older than the cutoff
// back to the queue so another worker can pick them up.
func (s *Store) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, started_at = NULL WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		string(TaskQueued),
		string(TaskProcessing),
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, storeErr("requeue stale tasks", err)
	}
	return res.RowsAffected()
}

// GetTask fetches a task by id. Missing tasks return (nil, nil).
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return task, nil
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	InvoiceID string
	Status    TaskStatus
	Type      TaskType
	Limit     int
}

// ListTasks returns tasks matching the filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.InvoiceID != "" {
		clauses = append(clauses, "invoice_id = ?")
		args = append(args, filter.InvoiceID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate tasks", err)
	}
	return tasks, nil
}

// TaskCounts returns the number of tasks per status.
func (s *Store) TaskCounts(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, storeErr("count tasks", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeErr("scan task count", err)
		}
		counts[TaskStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate task counts", err)
	}
	return counts, nil
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
