// Package pomatch compares invoice lines against the referenced purchase
// order and scores the match.
package pomatch

import (
	"context"
	"fmt"
	"math"

	"apflow/internal/agent"
	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

// Line match statuses.
const (
	LineMatched       = "matched"
	LinePriceMismatch = "price_mismatch"
	LineQtyMismatch   = "qty_mismatch"
	LineNoPOLine      = "no_po_line"
)

// LineMatch records the comparison of one invoice line to its PO line.
// Lines are paired by index; invoice lines beyond the PO length count as
// unmatched.
type LineMatch struct {
	POLineIndex  int     `json:"po_line_index"`
	ItemIndex    int     `json:"item_index"`
	POAmount     float64 `json:"po_amount"`
	InvAmount    float64 `json:"inv_amount"`
	PriceDiffPct float64 `json:"price_diff_pct"`
	QtyDiffPct   float64 `json:"qty_diff_pct"`
	Status       string  `json:"status"`
}

// Result is the stage-specific payload.
type Result struct {
	POFound           bool        `json:"po_found"`
	PONumber          string      `json:"po_number,omitempty"`
	POTotal           float64     `json:"po_total"`
	InvoiceTotal      float64     `json:"invoice_total"`
	TotalDiffPct      float64     `json:"total_diff_pct"`
	LineMatches       []LineMatch `json:"line_matches"`
	ToleranceExceeded bool        `json:"tolerance_exceeded"`
	MatchScore        float64     `json:"match_score"`
	Summary           string      `json:"summary"`
}

// Agent runs the PO match rules.
type Agent struct {
	store         *store.Store
	priceTolerPct float64
	qtyTolerPct   float64
}

// New builds the PO matching stage.
func New(st *store.Store, cfg *config.Config) *Agent {
	return &Agent{
		store:         st,
		priceTolerPct: cfg.POMatch.PriceTolerancePct,
		qtyTolerPct:   cfg.POMatch.QtyTolerancePct,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "po_match" }

// Invoke matches invoice lines to the referenced purchase order line by line.
// A missing PO needs a person; any tolerance breach reports a partial match.
func (a *Agent) Invoke(ctx context.Context, inv *invoice.Invoice) (agent.Response, error) {
	resp := agent.NewResponse(a.Name())

	poNumber := inv.Header.PONumber
	if poNumber == "" {
		resp.Status = agent.StatusNeedsHuman
		if err := resp.SetResult(Result{Summary: "no PO specified on invoice header"}); err != nil {
			return resp, err
		}
		return resp, nil
	}

	po, err := a.store.GetPurchaseOrder(ctx, poNumber)
	if err != nil {
		return resp, err
	}
	if po == nil {
		resp.Status = agent.StatusNeedsHuman
		if err := resp.SetResult(Result{Summary: fmt.Sprintf("PO not found: %s", poNumber)}); err != nil {
			return resp, err
		}
		return resp, nil
	}

	totalDiffPct := pctDiff(po.TotalAmount, inv.Header.Amount)
	matches := make([]LineMatch, 0, len(inv.Items))
	toleranceExceeded := false
	matchedCount := 0

	for idx, item := range inv.Items {
		if idx >= len(po.Lines) {
			matches = append(matches, LineMatch{
				POLineIndex: -1,
				ItemIndex:   idx,
				InvAmount:   item.Amount,
				Status:      LineNoPOLine,
			})
			toleranceExceeded = true
			continue
		}

		poLine := po.Lines[idx]
		priceDiffPct := pctDiff(poLine.Amount, item.Amount)
		qtyDiffPct := pctDiff(defaultQty(poLine.Quantity), defaultQty(item.Quantity))

		status := LineMatched
		if priceDiffPct > a.priceTolerPct {
			status = LinePriceMismatch
			toleranceExceeded = true
		}
		if qtyDiffPct > a.qtyTolerPct {
			status = LineQtyMismatch
			toleranceExceeded = true
		}
		if status == LineMatched {
			matchedCount++
		}

		matches = append(matches, LineMatch{
			POLineIndex:  idx + 1,
			ItemIndex:    idx,
			POAmount:     poLine.Amount,
			InvAmount:    item.Amount,
			PriceDiffPct: priceDiffPct,
			QtyDiffPct:   qtyDiffPct,
			Status:       status,
		})
	}

	matchScore := float64(matchedCount) / math.Max(1, float64(len(matches)))

	matched := !toleranceExceeded && totalDiffPct <= a.priceTolerPct
	if matched {
		resp.Status = agent.StatusCompleted
	} else {
		resp.Status = agent.StatusPartial
	}
	resp.Score = matchScore
	resp.ClampScore()

	if err := resp.SetResult(Result{
		POFound:           true,
		PONumber:          poNumber,
		POTotal:           po.TotalAmount,
		InvoiceTotal:      inv.Header.Amount,
		TotalDiffPct:      totalDiffPct,
		LineMatches:       matches,
		ToleranceExceeded: toleranceExceeded,
		MatchScore:        matchScore,
		Summary:           fmt.Sprintf("PO found. total_diff_pct=%.2f, match_score=%.2f", totalDiffPct, matchScore),
	}); err != nil {
		return resp, err
	}
	return resp, nil
}

func pctDiff(a, b float64) float64 {
	if a == 0 {
		if b != 0 {
			return 100
		}
		return 0
	}
	return math.Abs(a-b) / math.Abs(a) * 100
}

func defaultQty(qty float64) float64 {
	if qty == 0 {
		return 1
	}
	return qty
}
