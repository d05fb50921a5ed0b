package workflow

import (
	"context"
	"encoding/json"
	"log/slog"

	"apflow/internal/agent"
	"apflow/internal/invoice"
	"apflow/internal/logging"
	"apflow/internal/store"
)

// Explainer produces a human-readable explanation for an escalation. The
// explain stage implements it; tests substitute stubs.
type Explainer interface {
	Name() string
	Explain(ctx context.Context, inv *invoice.Invoice, trigger agent.Response) (agent.Response, error)
}

// EscalationPayload is stored on every human task so reviewers see why the
// pipeline stopped.
type EscalationPayload struct {
	Stage  string               `json:"stage"`
	Reason string               `json:"reason"`
	Status agent.ResponseStatus `json:"status"`
	Score  float64              `json:"score"`
	Result json.RawMessage      `json:"result,omitempty"`
}

// Escalator turns a halting stage response into a status transition, an
// optional explanation, and a queued human task, in that order. The
// explanation is appended before the task exists so a reviewer opening the
// task always finds it in the log.
type Escalator struct {
	store     *store.Store
	explainer Explainer
	logger    *slog.Logger
}

// NewEscalator builds an escalator. explainer may be nil to skip
// explanations entirely.
func NewEscalator(st *store.Store, explainer Explainer, logger *slog.Logger) *Escalator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Escalator{
		store:     st,
		explainer: explainer,
		logger:    logger.With(logging.String(logging.FieldComponent, "escalation")),
	}
}

// Escalate routes a halting response. A risk stage asking for a human becomes
// an approval task and parks the invoice in PENDING_APPROVAL; every other
// halt becomes a human_review task with the invoice in EXCEPTION.
func (e *Escalator) Escalate(ctx context.Context, inv *invoice.Invoice, resp agent.Response) error {
	taskType := store.TaskHumanReview
	reason := resp.Agent + "_failed_or_needs_human"
	next := invoice.StatusException
	if resp.Agent == "risk" && resp.Status == agent.StatusNeedsHuman {
		taskType = store.TaskApproval
		reason = "approval_required"
		next = invoice.StatusPendingApproval
	}

	if _, err := e.store.Transition(ctx, inv.ID, next, resp.Agent, reason); err != nil {
		return err
	}

	if e.explainer != nil {
		explanation, err := e.explainer.Explain(ctx, inv, resp)
		if err != nil {
			// Explanations are best-effort; the escalation proceeds.
			e.logger.Warn("explain failed", logging.Error(err),
				logging.String(logging.FieldInvoiceID, inv.ID))
		} else if err := e.store.AppendResponse(ctx, inv.ID, explanation); err != nil {
			return err
		}
	}

	payload := EscalationPayload{
		Stage:  resp.Agent,
		Reason: reason,
		Status: resp.Status,
		Score:  resp.Score,
		Result: resp.Result,
	}
	if _, err := e.store.EnqueueTask(ctx, taskType, inv.ID, payload); err != nil {
		return err
	}

	e.logger.Info("invoice escalated",
		logging.String(logging.FieldInvoiceID, inv.ID),
		logging.String(logging.FieldStage, resp.Agent),
		logging.String("task_type", string(taskType)),
		logging.String("reason", reason))
	return nil
}
