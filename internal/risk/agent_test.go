package risk_test

import (
	"context"
	"testing"

	"apflow/internal/agent"
	"apflow/internal/risk"
	"apflow/internal/store"
	"apflow/internal/testsupport"
)

func TestBelowThresholdAutoApproves(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	stage := risk.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), testsupport.NewInvoice("inv-1"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Status)
	}

	var result risk.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.Decision != risk.DecisionAutoApprove || result.Reason != "below_threshold" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHighValueSuggestsManagerThenDirector(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutoApproveLimit(1000))
	st := testsupport.MustOpenStore(t, cfg)
	stage := risk.New(st, cfg)

	inv := testsupport.NewInvoice("inv-2")
	inv.Header.BuyerCompanyCode = ""
	inv.Header.Amount = 2000

	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusNeedsHuman {
		t.Fatalf("expected needs_human, got %s", resp.Status)
	}
	var result risk.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.SuggestedApprover != risk.ApproverManager {
		t.Fatalf("expected manager, got %s", result.SuggestedApprover)
	}

	inv.Header.Amount = 3000 // three times the limit
	resp, err = stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.SuggestedApprover != risk.ApproverDirector {
		t.Fatalf("expected director, got %s", result.SuggestedApprover)
	}
}

func TestBlacklistedVendorGoesToSecurityTeam(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.UpsertVendor(context.Background(), store.Vendor{
		VendorNumber: "V100",
		Blacklisted:  true,
	}); err != nil {
		t.Fatalf("UpsertVendor: %v", err)
	}

	stage := risk.New(st, cfg)
	resp, err := stage.Invoke(context.Background(), testsupport.NewInvoice("inv-3"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusNeedsHuman {
		t.Fatalf("expected needs_human, got %s", resp.Status)
	}

	var result risk.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.Reason != "vendor_blacklisted" || result.SuggestedApprover != risk.ApproverSecurityTeam {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCompanyApprovalRuleOverridesLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.UpsertApprovalRule(context.Background(), store.ApprovalRule{
		CompanyCode:        "1000",
		AutoApproveLimit:   100,
		DirectorMultiplier: 3,
	}); err != nil {
		t.Fatalf("UpsertApprovalRule: %v", err)
	}

	stage := risk.New(st, cfg)
	inv := testsupport.NewInvoice("inv-4") // amount 150, company 1000
	resp, err := stage.Invoke(context.Background(), inv)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != agent.StatusNeedsHuman {
		t.Fatalf("company rule should force escalation, got %s", resp.Status)
	}

	var result risk.Result
	if err := resp.DecodeResult(&result); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if result.Threshold != 100 {
		t.Fatalf("expected company threshold 100, got %f", result.Threshold)
	}
}
