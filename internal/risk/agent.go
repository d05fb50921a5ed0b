// Package risk decides whether an invoice can auto-approve or needs a human
// approver, and at which level.
package risk

import (
	"context"
	"math"

	"apflow/internal/agent"
	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

// Approver levels suggested for escalated invoices.
const (
	ApproverManager      = "manager"
	ApproverDirector     = "director"
	ApproverSecurityTeam = "security_team"
)

// Decision values reported in the result payload.
const (
	DecisionAutoApprove = "auto_approve"
	DecisionNeedsHuman  = "needs_human"
)

// Result is the stage-specific payload.
type Result struct {
	Decision          string  `json:"decision"`
	Reason            string  `json:"reason"`
	Amount            float64 `json:"amount"`
	Threshold         float64 `json:"threshold"`
	SuggestedApprover string  `json:"suggested_approver,omitempty"`
	VendorNumber      string  `json:"vendor_number,omitempty"`
}

// Agent runs the risk and approval rules.
type Agent struct {
	store        *store.Store
	defaultLimit float64
	blacklist    map[string]struct{}
}

// New builds the risk stage. Company-specific approval rules in masterdata
// override the configured default limit.
func New(st *store.Store, cfg *config.Config) *Agent {
	blacklist := make(map[string]struct{}, len(cfg.Risk.VendorBlacklist))
	for _, vendor := range cfg.Risk.VendorBlacklist {
		blacklist[vendor] = struct{}{}
	}
	return &Agent{
		store:        st,
		defaultLimit: cfg.Risk.AutoApproveLimit,
		blacklist:    blacklist,
	}
}

// Name implements agent.Agent.
func (a *Agent) Name() string { return "risk" }

// Invoke evaluates the blacklist first, then the auto-approve threshold. The
// director level applies from three times the limit upward unless a company
// rule tunes the multiplier.
func (a *Agent) Invoke(ctx context.Context, inv *invoice.Invoice) (agent.Response, error) {
	resp := agent.NewResponse(a.Name())

	limit := a.defaultLimit
	multiplier := 3.0
	if inv.Header.BuyerCompanyCode != "" {
		rule, err := a.store.GetApprovalRule(ctx, inv.Header.BuyerCompanyCode)
		if err != nil {
			return resp, err
		}
		if rule != nil {
			limit = rule.AutoApproveLimit
			if rule.DirectorMultiplier > 0 {
				multiplier = rule.DirectorMultiplier
			}
		}
	}

	vendorNumber := inv.Header.VendorNumber
	blacklisted := false
	if _, listed := a.blacklist[vendorNumber]; listed {
		blacklisted = true
	}
	if !blacklisted && vendorNumber != "" {
		vendor, err := a.store.GetVendor(ctx, vendorNumber)
		if err != nil {
			return resp, err
		}
		blacklisted = vendor != nil && vendor.Blacklisted
	}

	amount := inv.Header.Amount

	if blacklisted {
		resp.Status = agent.StatusNeedsHuman
		resp.Score = 0.95
		if err := resp.SetResult(Result{
			Decision:          DecisionNeedsHuman,
			Reason:            "vendor_blacklisted",
			Amount:            amount,
			Threshold:         limit,
			SuggestedApprover: ApproverSecurityTeam,
			VendorNumber:      vendorNumber,
		}); err != nil {
			return resp, err
		}
		return resp, nil
	}

	if amount <= limit {
		resp.Status = agent.StatusCompleted
		resp.Score = 0.98
		if err := resp.SetResult(Result{
			Decision:  DecisionAutoApprove,
			Reason:    "below_threshold",
			Amount:    amount,
			Threshold: limit,
		}); err != nil {
			return resp, err
		}
		return resp, nil
	}

	suggested := ApproverManager
	if amount >= limit*multiplier {
		suggested = ApproverDirector
	}
	resp.Status = agent.StatusNeedsHuman
	resp.Score = math.Max(0, math.Min(1, 1-limit/(amount+1)))
	if err := resp.SetResult(Result{
		Decision:          DecisionNeedsHuman,
		Reason:            "exceeds_threshold",
		Amount:            amount,
		Threshold:         limit,
		SuggestedApprover: suggested,
	}); err != nil {
		return resp, err
	}
	return resp, nil
}
