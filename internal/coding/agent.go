// Package coding assigns GL accounts and cost centers to invoice lines from
// vendor defaults, company rules, and line text heuristics.
package coding

import (
	"context"
	"math"
	"strings"

	"apflow/internal/agent"
	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

// GL accounts the text heuristics fall back to.
const (
	glTravel     = "500100"
	glConsulting = "600200"
)

// LineCoding is the assignment for one invoice line.
type LineCoding struct {
	ItemIndex  int     `json:"item_index"`
	GLAccount  string  `json:"gl_account,omitempty"`
	CostCenter string  `json:"cost_center,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Result is the stage-specific payload.
type Result struct {
	Lines        []LineCoding `json:"lines,omitempty"`
	InvoiceLevel *LineCoding  `json:"invoice_level_coding,omitempty"`
}

// Agent runs the coding rules.
type Agent struct {
	store         *store.Store
	minConfidence float64
	costCenters   map[string]string
}

// New builds the coding stage.
func New(st *store.Store, cfg *config.Config) *Agent {
	return &Agent{
		store:         st,
		minConfidence: cfg.Coding.MinConfidence,
		costCenters:   cfg.Coding.CompanyCostCenters,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "coding" }

// Invoke codes each line. Vendor masterdata defaults win; company cost
// centers fill the gap; text heuristics are the last resort. An average
// confidence below the configured minimum reports a partial response so the
// invoice escalates to a person.
func (a *Agent) Invoke(ctx context.Context, inv *invoice.Invoice) (agent.Response, error) {
	resp := agent.NewResponse(a.Name())

	var defaultGL, vendorCC string
	if inv.Header.VendorNumber != "" {
		vendor, err := a.store.GetVendor(ctx, inv.Header.VendorNumber)
		if err != nil {
			return resp, err
		}
		if vendor != nil {
			defaultGL = vendor.DefaultGLAccount
			vendorCC = vendor.DefaultCostCenter
		}
	}
	companyCC := a.costCenters[inv.Header.BuyerCompanyCode]
	costCenter := vendorCC
	if costCenter == "" {
		costCenter = companyCC
	}

	var result Result
	score := 0.0

	if len(inv.Items) == 0 {
		if defaultGL != "" || costCenter != "" {
			score = 0.9
			result.InvoiceLevel = &LineCoding{
				GLAccount:  defaultGL,
				CostCenter: costCenter,
				Confidence: score,
			}
		} else {
			score = 0.2
		}
	} else {
		lines := make([]LineCoding, 0, len(inv.Items))
		total := 0.0
		for idx, item := range inv.Items {
			coded := LineCoding{ItemIndex: idx}
			confidence := 0.0
			if defaultGL != "" {
				coded.GLAccount = defaultGL
				confidence += 0.6
			}
			if costCenter != "" {
				coded.CostCenter = costCenter
				confidence += 0.4
			}
			if coded.GLAccount == "" && coded.CostCenter == "" {
				text := strings.ToLower(item.Description)
				if strings.Contains(text, "travel") || strings.Contains(text, "flight") || strings.Contains(text, "hotel") {
					coded.GLAccount = glTravel
					confidence += 0.2
				} else if strings.Contains(text, "consult") || strings.Contains(text, "service") {
					coded.GLAccount = glConsulting
					confidence += 0.1
				}
			}
			coded.Confidence = math.Min(1, confidence)
			lines = append(lines, coded)
			total += coded.Confidence
		}
		result.Lines = lines
		score = total / float64(len(lines))
	}

	resp.Score = score
	resp.ClampScore()
	if resp.Score < a.minConfidence {
		resp.Status = agent.StatusPartial
	} else {
		resp.Status = agent.StatusCompleted
	}

	if err := resp.SetResult(result); err != nil {
		return resp, err
	}
	return resp, nil
}
