package pomatch_test

import (
	"context"
	"testing"

	"apflow/internal/agent"
	"apflow/internal/pomatch"
	"apflow/internal/store"
	"apflow/internal/testsupport"
)

func seedPO(t *testing.T, st *store.Store, total float64, lines []store.POLine) {
	t.Helper()
	if err := st.UpsertPurchaseOrder(context.Background(), store.PurchaseOrder{
		PONumber:     "PO-1",
		VendorNumber: "V100",
		Currency:     "EUR",
		TotalAmount:  total,
		Lines:        lines,
	}); err != nil {
		t.Fatalf("UpsertPurchaseOrder: %v", err)
	}
}

func TestExactMatchCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedPO(t, st, 150, []store.POLine{
		{Description: "widgets", Quantity: 10, Amount: 100},
		{Description: "shipping", Quantity: 1, Amount: 50},
	})

	inv := testsupport.NewInvoice("inv-1")
	inv.Header.PONumber = "PO-1"

	stage := pomatch.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Status)
	}

	var result pomatch.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if !result.POFound || result.MatchScore != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestMissingPONeedsHuman(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	inv := testsupport.NewInvoice("inv-2")
	inv.Header.PONumber = "PO-404"

	stage := pomatch.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusNeedsHuman {
		t.Fatalf("expected needs_human, got %s", resp.Status)
	}

	var result pomatch.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.POFound {
		t.Fatalf("PO should be missing: %+v", result)
	}
}

func TestPriceMismatchReportsPartial(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedPO(t, st, 150, []store.POLine{
		{Description: "widgets", Quantity: 10, Amount: 80}, // invoice bills 100
		{Description: "shipping", Quantity: 1, Amount: 50},
	})

	inv := testsupport.NewInvoice("inv-3")
	inv.Header.PONumber = "PO-1"

	stage := pomatch.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusPartial {
		t.Fatalf("expected partial, got %s", resp.Status)
	}

	var result pomatch.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if !result.ToleranceExceeded {
		t.Fatal("expected tolerance breach")
	}
	if result.LineMatches[0].Status != pomatch.LinePriceMismatch {
		t.Fatalf("expected price mismatch on first line: %+v", result.LineMatches[0])
	}
}

func TestExtraInvoiceLineCountsAsUnmatched(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedPO(t, st, 150, []store.POLine{
		{Description: "widgets", Quantity: 10, Amount: 100},
	})

	inv := testsupport.NewInvoice("inv-4")
	inv.Header.PONumber = "PO-1"

	stage := pomatch.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusPartial {
		t.Fatalf("expected partial, got %s", resp.Status)
	}

	var result pomatch.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	last := result.LineMatches[len(result.LineMatches)-1]
	if last.Status != pomatch.LineNoPOLine {
		t.Fatalf("expected no_po_line status, got %+v", last)
	}
	if result.MatchScore != 0.5 {
		t.Fatalf("expected match score 0.5, got %f", result.MatchScore)
	}
}
