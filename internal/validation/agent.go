// Package validation implements the deterministic header and line checks an
// invoice must pass before any downstream stage runs.
package validation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/text/currency"

	"apflow/internal/agent"
	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

// Issue is one validation finding. Severity "E" blocks the pipeline.
type Issue struct {
	Code     string `json:"code"`
	Field    string `json:"field"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Result is the stage-specific payload.
type Result struct {
	Valid       bool    `json:"valid"`
	Issues      []Issue `json:"issues"`
	VendorFound bool    `json:"vendor_found"`
	ItemsTotal  float64 `json:"items_total"`
	DiffPct     float64 `json:"diff_pct"`
}

// Agent runs the validation rules against masterdata.
type Agent struct {
	store        *store.Store
	tolerancePct float64
}

// New builds the validation stage.
func New(st *store.Store, cfg *config.Config) *Agent {
	return &Agent{store: st, tolerancePct: cfg.Validation.AmountTolerancePct}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "validation" }

// Invoke checks mandatory header fields, vendor existence, currency validity,
// and the header amount against the line item sum within the configured
// tolerance. Any blocking issue yields a needs_human response.
func (a *Agent) Invoke(ctx context.Context, inv *invoice.Invoice) (agent.Response, error) {
	resp := agent.NewResponse(a.Name())
	var issues []Issue

	type mandatory struct {
		field string
		empty bool
	}
	fields := []mandatory{
		{"invoice_ref", inv.Header.InvoiceRef == ""},
		{"invoice_date", inv.Header.InvoiceDate == ""},
		{"vendor_number", inv.Header.VendorNumber == ""},
		{"currency", inv.Header.Currency == ""},
		{"amount", inv.Header.Amount == 0},
	}
	for _, f := range fields {
		if f.empty {
			issues = append(issues, Issue{
				Code:     "MISSING_FIELD",
				Field:    "header." + f.field,
				Severity: "E",
				Message:  f.field + " is missing",
			})
		}
	}

	vendorFound := false
	if inv.Header.VendorNumber != "" {
		vendor, err := a.store.GetVendor(ctx, inv.Header.VendorNumber)
		if err != nil {
			return resp, err
		}
		vendorFound = vendor != nil
		if !vendorFound {
			issues = append(issues, Issue{
				Code:     "VENDOR_NOT_FOUND",
				Field:    "header.vendor_number",
				Severity: "E",
				Message:  fmt.Sprintf("vendor %q not found in vendor master", inv.Header.VendorNumber),
			})
		}
	}

	if inv.Header.Currency != "" {
		if _, err := currency.ParseISO(inv.Header.Currency); err != nil {
			issues = append(issues, Issue{
				Code:     "CURRENCY_INVALID",
				Field:    "header.currency",
				Severity: "E",
				Message:  fmt.Sprintf("%q is not an ISO 4217 currency", inv.Header.Currency),
			})
		}
	}

	itemsTotal := inv.ItemTotal()
	diffPct := 0.0
	if inv.Header.Amount != 0 {
		diffPct = math.Abs(itemsTotal-inv.Header.Amount) / math.Abs(inv.Header.Amount) * 100
	} else if itemsTotal != 0 {
		diffPct = 100
	}
	if len(inv.Items) > 0 && diffPct > a.tolerancePct {
		issues = append(issues, Issue{
			Code:     "AMOUNT_MISMATCH",
			Field:    "header.amount",
			Severity: "E",
			Message: fmt.Sprintf("header amount %.2f != sum(items) %.2f (diff_pct=%.2f > tol=%.2f)",
				inv.Header.Amount, itemsTotal, diffPct, a.tolerancePct),
		})
	}

	blocking := false
	for _, issue := range issues {
		if issue.Severity == "E" {
			blocking = true
			break
		}
	}

	if blocking {
		resp.Status = agent.StatusNeedsHuman
	} else {
		resp.Status = agent.StatusCompleted
	}
	resp.Score = 1 - math.Min(1, float64(len(issues))/10)
	resp.ClampScore()

	if err := resp.SetResult(Result{
		Valid:       !blocking,
		Issues:      issues,
		VendorFound: vendorFound,
		ItemsTotal:  itemsTotal,
		DiffPct:     diffPct,
	}); err != nil {
		return resp, err
	}
	return resp, nil
}
