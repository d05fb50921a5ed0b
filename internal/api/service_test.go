package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"apflow/internal/api"
	"apflow/internal/invoice"
	"apflow/internal/services"
	"apflow/internal/store"
	"apflow/internal/testsupport"
)

func rawDoc(id string) invoice.RawDocument {
	return invoice.RawDocument{
		ID: id,
		Header: invoice.RawHeader{
			InvoiceRef:   "INV-" + id,
			InvoiceDate:  "2026-08-01",
			VendorNumber: "V100",
			Currency:     "EUR",
			Amount:       json.RawMessage(`150`),
		},
		Lines: []invoice.RawLine{
			{Description: "widgets", Quantity: json.RawMessage(`10`), Amount: json.RawMessage(`100`)},
			{Description: "shipping", Quantity: json.RawMessage(`1`), Amount: json.RawMessage(`50`)},
		},
	}
}

func TestIngestPersistsAndQueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	inv, task, err := svc.Ingest(ctx, rawDoc("inv-1"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if inv.Status != invoice.StatusReceived {
		t.Fatalf("expected RECEIVED, got %s", inv.Status)
	}
	if task.Type != store.TaskProcessInvoice || task.Status != store.TaskQueued {
		t.Fatalf("unexpected task: %+v", task)
	}

	view, err := svc.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if len(view.Log) != 1 || view.Log[0].Kind != store.LogStatusChange {
		t.Fatalf("expected initial log entry, got %+v", view.Log)
	}
}

func TestIngestRejectsUnparsableDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)

	_, _, err := svc.Ingest(context.Background(), invoice.RawDocument{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApproveTaskMovesInvoiceAndQueuesPosting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-2"))
	for _, next := range []invoice.Status{invoice.StatusValidated, invoice.StatusPendingApproval} {
		if _, err := st.Transition(ctx, "inv-2", next, "test", "walk"); err != nil {
			t.Fatalf("Transition: %v", err)
		}
	}
	task, err := st.EnqueueTask(ctx, store.TaskApproval, "inv-2", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	resolved, err := svc.ResolveTask(ctx, task.ID, api.ActionApprove, "alex", "within budget")
	if err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}
	if resolved.Status != store.TaskDone {
		t.Fatalf("expected done task, got %s", resolved.Status)
	}

	inv, err := st.GetInvoice(ctx, "inv-2")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Status != invoice.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", inv.Status)
	}

	queued, err := st.ListTasks(ctx, store.TaskFilter{Type: store.TaskProcessInvoice, Status: store.TaskQueued})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("approval should queue a posting task, got %d", len(queued))
	}

	entries, err := st.Entries(ctx, "inv-2")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Kind == store.LogHumanResolution && entry.Actor == "alex" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected human resolution entry")
	}
}

func TestRejectTaskFinishesInvoice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-3"))
	if _, err := st.Transition(ctx, "inv-3", invoice.StatusException, "test", "walk"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	task, err := st.EnqueueTask(ctx, store.TaskHumanReview, "inv-3", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	if _, err := svc.ResolveTask(ctx, task.ID, api.ActionReject, "alex", "duplicate"); err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}

	inv, err := st.GetInvoice(ctx, "inv-3")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if inv.Status != invoice.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", inv.Status)
	}
}

func TestResolveTaskValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-4"))
	pipeline, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-4", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	if _, err := svc.ResolveTask(ctx, pipeline.ID, api.ActionApprove, "alex", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("pipeline tasks must not be resolvable: %v", err)
	}
	if _, err := svc.ResolveTask(ctx, "missing", api.ActionApprove, "alex", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	human, err := st.EnqueueTask(ctx, store.TaskHumanReview, "inv-4", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if _, err := svc.ResolveTask(ctx, human.ID, "defer", "alex", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown action must fail: %v", err)
	}
	if _, err := svc.ResolveTask(ctx, human.ID, api.ActionReject, "alex", ""); err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}
	if _, err := svc.ResolveTask(ctx, human.ID, api.ActionReject, "alex", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("double resolution must fail: %v", err)
	}
}

func TestReprocessRequiresExistingInvoice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	if _, err := svc.Reprocess(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-5"))
	task, err := svc.Reprocess(ctx, "inv-5")
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if task.Type != store.TaskProcessInvoice {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestStatusAggregatesCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := api.NewService(st, nil)
	ctx := context.Background()

	if _, _, err := svc.Ingest(ctx, rawDoc("inv-6")); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Tasks[store.TaskQueued] != 1 {
		t.Fatalf("expected one queued task, got %+v", status.Tasks)
	}
	if status.Invoices[invoice.StatusReceived] != 1 {
		t.Fatalf("expected one received invoice, got %+v", status.Invoices)
	}
}
