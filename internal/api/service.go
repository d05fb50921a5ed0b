package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"apflow/internal/invoice"
	"apflow/internal/logging"
	"apflow/internal/services"
	"apflow/internal/store"
)

// Task resolution actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Service implements the operational surface over the store.
type Service struct {
	store  *store.Store
	logger *slog.Logger
}

// NewService builds the service facade.
func NewService(st *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:  st,
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
	}
}

// Ingest normalizes a raw capture document, persists it as RECEIVED, and
// queues the pipeline task that will process it.
func (s *Service) Ingest(ctx context.Context, raw invoice.RawDocument) (*invoice.Invoice, *store.Task, error) {
	inv, err := invoice.Normalize(raw)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, "ingest", "normalize", "invalid document", err)
	}
	if err := s.store.CreateInvoice(ctx, inv, "ingestion"); err != nil {
		return nil, nil, err
	}
	task, err := s.store.EnqueueTask(ctx, store.TaskProcessInvoice, inv.ID, nil)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("invoice ingested",
		logging.String(logging.FieldInvoiceID, inv.ID),
		logging.String(logging.FieldTaskID, task.ID))
	return inv, task, nil
}

// ResolveTask applies a human decision to a queued human_review or approval
// task. Approval moves the invoice to APPROVED and queues a pipeline task so
// a worker posts it; rejection finishes the invoice at REJECTED.
func (s *Service) ResolveTask(ctx context.Context, taskID, action, actor, notes string) (*store.Task, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionApprove && action != ActionReject {
		return nil, fmt.Errorf("action %q: %w", action, services.ErrValidation)
	}
	if actor == "" {
		actor = "human"
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, services.ErrNotFound)
	}
	if task.Type != store.TaskHumanReview && task.Type != store.TaskApproval {
		return nil, fmt.Errorf("task %s is not a human task: %w", taskID, services.ErrValidation)
	}
	if task.Status != store.TaskQueued {
		return nil, fmt.Errorf("task %s already %s: %w", taskID, task.Status, services.ErrValidation)
	}

	next := invoice.StatusRejected
	if action == ActionApprove {
		next = invoice.StatusApproved
	}
	if _, err := s.store.Transition(ctx, task.InvoiceID, next, actor, action); err != nil {
		return nil, err
	}
	if err := s.store.AppendHumanResolution(ctx, task.InvoiceID, actor, action, notes); err != nil {
		return nil, err
	}
	if err := s.store.MarkTaskDone(ctx, task.ID); err != nil {
		return nil, err
	}

	if action == ActionApprove {
		if _, err := s.store.EnqueueTask(ctx, store.TaskProcessInvoice, task.InvoiceID, nil); err != nil {
			return nil, err
		}
	}

	s.logger.Info("task resolved",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldInvoiceID, task.InvoiceID),
		logging.String("action", action),
		logging.String("actor", actor))
	return s.store.GetTask(ctx, task.ID)
}

// Reprocess queues a fresh pipeline task for an existing invoice.
func (s *Service) Reprocess(ctx context.Context, invoiceID string) (*store.Task, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, services.ErrNotFound)
	}
	return s.store.EnqueueTask(ctx, store.TaskProcessInvoice, invoiceID, nil)
}

// InvoiceView pairs an invoice with its full workflow log.
type InvoiceView struct {
	Invoice *invoice.Invoice  `json:"invoice"`
	Log     []*store.LogEntry `json:"log"`
}

// GetInvoice returns an invoice with its workflow log.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*InvoiceView, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, services.ErrNotFound)
	}
	entries, err := s.store.Entries(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &InvoiceView{Invoice: inv, Log: entries}, nil
}

// ListInvoices lists invoices, optionally filtered by status.
func (s *Service) ListInvoices(ctx context.Context, status string, limit int) ([]*invoice.Invoice, error) {
	filter := store.InvoiceFilter{Limit: limit}
	if status != "" {
		parsed, ok := invoice.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("status %q: %w", status, services.ErrValidation)
		}
		filter.Status = parsed
	}
	return s.store.ListInvoices(ctx, filter)
}

// ListTasks lists tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

// LoadVendor upserts a vendor master record.
func (s *Service) LoadVendor(ctx context.Context, vendor store.Vendor) error {
	return s.store.UpsertVendor(ctx, vendor)
}

// LoadPurchaseOrder upserts a purchase order.
func (s *Service) LoadPurchaseOrder(ctx context.Context, po store.PurchaseOrder) error {
	return s.store.UpsertPurchaseOrder(ctx, po)
}

// LoadApprovalRule upserts a company approval rule.
func (s *Service) LoadApprovalRule(ctx context.Context, rule store.ApprovalRule) error {
	return s.store.UpsertApprovalRule(ctx, rule)
}

// Status summarizes queue and invoice state for health and status endpoints.
type Status struct {
	Tasks    map[store.TaskStatus]int `json:"tasks"`
	Invoices map[invoice.Status]int   `json:"invoices"`
}

// Status reports queue depth and invoice distribution.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	tasks, err := s.store.TaskCounts(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.InvoiceStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Tasks: tasks, Invoices: invoices}, nil
}

// Health checks the store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
