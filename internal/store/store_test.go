package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"apflow/internal/invoice"
	"apflow/internal/store"
	"apflow/internal/testsupport"
)

func TestCreateInvoiceWritesInitialLogEntry(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	inv := testsupport.NewInvoice("inv-1")
	if err := st.CreateInvoice(ctx, inv, "ingestion"); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	stored, err := st.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if stored == nil {
		t.Fatal("expected stored invoice")
	}
	if stored.Status != invoice.StatusReceived {
		t.Fatalf("expected RECEIVED, got %s", stored.Status)
	}
	if len(stored.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(stored.Items))
	}

	entries, err := st.Entries(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	first := entries[0]
	if first.Kind != store.LogStatusChange || first.ToStatus != invoice.StatusReceived {
		t.Fatalf("unexpected initial entry: %+v", first)
	}
	if !first.Allowed {
		t.Fatal("initial entry should be allowed")
	}
}

func TestCreateInvoiceRejectsDuplicates(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	inv := testsupport.NewInvoice("inv-dup")
	if err := st.CreateInvoice(ctx, inv, "ingestion"); err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	err := st.CreateInvoice(ctx, testsupport.NewInvoice("inv-dup"), "ingestion")
	if !errors.Is(err, store.ErrInvoiceExists) {
		t.Fatalf("expected ErrInvoiceExists, got %v", err)
	}
}

func TestTransitionAppliesStatusAndLogsIt(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-2"))

	rec, err := st.Transition(ctx, "inv-2", invoice.StatusValidated, "validation", "all checks passed")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !rec.Allowed || !rec.Applied {
		t.Fatalf("expected allowed applied transition, got %+v", rec)
	}

	stored, err := st.GetInvoice(ctx, "inv-2")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if stored.Status != invoice.StatusValidated {
		t.Fatalf("expected VALIDATED, got %s", stored.Status)
	}

	last, err := st.LastStatusChange(ctx, "inv-2")
	if err != nil {
		t.Fatalf("LastStatusChange: %v", err)
	}
	if last == nil || last.ToStatus != invoice.StatusValidated {
		t.Fatalf("log and status disagree: %+v", last)
	}
}

func TestTransitionLogsIllegalMoveWithoutAllowedFlag(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-3"))

	// RECEIVED -> APPROVED is not in the transition table.
	rec, err := st.Transition(ctx, "inv-3", invoice.StatusApproved, "test", "shortcut")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if rec.Allowed {
		t.Fatal("expected transition to be flagged as not allowed")
	}
	if !rec.Applied {
		t.Fatal("non-terminal source should still apply the write")
	}

	stored, err := st.GetInvoice(ctx, "inv-3")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if stored.Status != invoice.StatusApproved {
		t.Fatalf("expected APPROVED after audited write, got %s", stored.Status)
	}

	last, err := st.LastStatusChange(ctx, "inv-3")
	if err != nil {
		t.Fatalf("LastStatusChange: %v", err)
	}
	if last.Allowed {
		t.Fatal("log entry should record allowed=false")
	}
}

func TestTransitionFromTerminalStatusLeavesStatusUntouched(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-4"))

	steps := []invoice.Status{
		invoice.StatusValidated,
		invoice.StatusReadyForPosting,
		invoice.StatusPosted,
	}
	for _, next := range steps {
		if _, err := st.Transition(ctx, "inv-4", next, "test", "walk"); err != nil {
			t.Fatalf("Transition to %s: %v", next, err)
		}
	}

	rec, err := st.Transition(ctx, "inv-4", invoice.StatusValidated, "test", "rewind")
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if rec.Allowed {
		t.Fatal("POSTED -> VALIDATED should not be allowed")
	}
	if rec.Applied {
		t.Fatal("terminal status must not be overwritten")
	}

	stored, err := st.GetInvoice(ctx, "inv-4")
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if stored.Status != invoice.StatusPosted {
		t.Fatalf("expected POSTED to survive, got %s", stored.Status)
	}

	entries, err := st.Entries(ctx, "inv-4")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	lastEntry := entries[len(entries)-1]
	if lastEntry.ToStatus != invoice.StatusValidated || lastEntry.Allowed {
		t.Fatalf("rejected attempt must still be logged: %+v", lastEntry)
	}
}

func TestClaimNextReturnsOldestQueuedOfRequestedTypes(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-5"))

	human, err := st.EnqueueTask(ctx, store.TaskHumanReview, "inv-5", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	first, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-5", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if _, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-5", nil); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	claimed, err := st.ClaimNext(ctx, store.TaskProcessInvoice)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest process task %s, got %+v", first.ID, claimed)
	}
	if claimed.Status != store.TaskProcessing || claimed.StartedAt == nil {
		t.Fatalf("claimed task not marked processing: %+v", claimed)
	}

	// The human review task stays queued for a person.
	untouched, err := st.GetTask(ctx, human.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if untouched.Status != store.TaskQueued {
		t.Fatalf("human task should stay queued, got %s", untouched.Status)
	}
}

func TestClaimNextEmptyQueueReturnsNil(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	task, err := st.ClaimNext(context.Background(), store.TaskProcessInvoice)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task != nil {
		t.Fatalf("expected nil task, got %+v", task)
	}
}

func TestConcurrentClaimersGetDistinctTasks(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-6"))

	const taskCount = 8
	for i := 0; i < taskCount; i++ {
		if _, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-6", nil); err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := st.ClaimNext(ctx, store.TaskProcessInvoice)
				if errors.Is(err, store.ErrClaimConflict) {
					continue
				}
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != taskCount {
		t.Fatalf("expected %d distinct claims, got %d", taskCount, len(claimed))
	}
	for id, times := range claimed {
		if times != 1 {
			t.Fatalf("task %s claimed %d times", id, times)
		}
	}
}

func TestRequeueStaleReturnsExpiredClaims(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-7"))

	if _, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-7", nil); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	claimed, err := st.ClaimNext(ctx, store.TaskProcessInvoice)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	// A cutoff in the past leaves fresh claims alone.
	count, err := st.RequeueStale(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no stale tasks, requeued %d", count)
	}

	count, err = st.RequeueStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stale task, requeued %d", count)
	}

	task, err := st.GetTask(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskQueued || task.StartedAt != nil {
		t.Fatalf("stale task not reset: %+v", task)
	}
}

func TestMarkTaskDoneAndError(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, st, testsupport.NewInvoice("inv-8"))

	done, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-8", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	failed, err := st.EnqueueTask(ctx, store.TaskProcessInvoice, "inv-8", nil)
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	if err := st.MarkTaskDone(ctx, done.ID); err != nil {
		t.Fatalf("MarkTaskDone: %v", err)
	}
	if err := st.MarkTaskError(ctx, failed.ID, "invoice_not_found"); err != nil {
		t.Fatalf("MarkTaskError: %v", err)
	}

	stored, err := st.GetTask(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != store.TaskDone || stored.FinishedAt == nil {
		t.Fatalf("done task not finished: %+v", stored)
	}

	stored, err = st.GetTask(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != store.TaskError || stored.ErrorMessage != "invoice_not_found" {
		t.Fatalf("error task not recorded: %+v", stored)
	}
}

func TestMasterdataRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := st.UpsertVendor(ctx, store.Vendor{
		VendorNumber:      "V100",
		Name:              "Acme GmbH",
		DefaultGLAccount:  "400000",
		DefaultCostCenter: "CC1000",
	}); err != nil {
		t.Fatalf("UpsertVendor: %v", err)
	}
	if err := st.UpsertVendor(ctx, store.Vendor{
		VendorNumber: "V100",
		Name:         "Acme GmbH",
		Blacklisted:  true,
	}); err != nil {
		t.Fatalf("UpsertVendor update: %v", err)
	}

	vendor, err := st.GetVendor(ctx, "V100")
	if err != nil {
		t.Fatalf("GetVendor: %v", err)
	}
	if vendor == nil || !vendor.Blacklisted {
		t.Fatalf("upsert did not replace vendor: %+v", vendor)
	}

	missing, err := st.GetVendor(ctx, "V999")
	if err != nil {
		t.Fatalf("GetVendor missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing vendor, got %+v", missing)
	}

	if err := st.UpsertPurchaseOrder(ctx, store.PurchaseOrder{
		PONumber:     "PO-1",
		VendorNumber: "V100",
		Currency:     "EUR",
		TotalAmount:  150,
		Lines: []store.POLine{
			{Description: "widgets", Quantity: 10, UnitPrice: 10, Amount: 100},
			{Description: "shipping", Quantity: 1, UnitPrice: 50, Amount: 50},
		},
	}); err != nil {
		t.Fatalf("UpsertPurchaseOrder: %v", err)
	}

	po, err := st.GetPurchaseOrder(ctx, "PO-1")
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if po == nil || len(po.Lines) != 2 {
		t.Fatalf("purchase order lines lost: %+v", po)
	}

	if err := st.UpsertApprovalRule(ctx, store.ApprovalRule{
		CompanyCode:        "1000",
		AutoApproveLimit:   20000,
		DirectorMultiplier: 3,
	}); err != nil {
		t.Fatalf("UpsertApprovalRule: %v", err)
	}
	rule, err := st.GetApprovalRule(ctx, "1000")
	if err != nil {
		t.Fatalf("GetApprovalRule: %v", err)
	}
	if rule == nil || rule.AutoApproveLimit != 20000 {
		t.Fatalf("approval rule mismatch: %+v", rule)
	}
}
