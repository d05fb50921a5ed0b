package workflow

import (
	"context"
	"log/slog"

	"apflow/internal/agent"
	"apflow/internal/invoice"
	"apflow/internal/logging"
	"apflow/internal/store"
)

// Task failure reasons recorded on the task row.
const (
	reasonInvoiceNotFound     = "invoice_not_found"
	reasonUnsupportedTaskType = "unsupported_task_type"
)

// successStatus maps a stage to the status a completed response applies.
// The risk stage has no entry: its success leaves the status alone and the
// final READY_FOR_POSTING write closes the pipeline.
var successStatus = map[string]invoice.Status{
	"validation": invoice.StatusValidated,
	"po_match":   invoice.StatusMatched,
	"coding":     invoice.StatusCoded,
}

// Driver executes the stage pipeline for one claimed task.
type Driver struct {
	store     *store.Store
	escalator *Escalator
	stages    []agent.Agent
	logger    *slog.Logger
}

// NewDriver builds a driver over the ordered stage list.
func NewDriver(st *store.Store, escalator *Escalator, logger *slog.Logger, stages ...agent.Agent) *Driver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Driver{
		store:     st,
		escalator: escalator,
		stages:    stages,
		logger:    logger.With(logging.String(logging.FieldComponent, "driver")),
	}
}

// Run processes a claimed task to completion and records the outcome on the
// task row. An error return means a persistence failure left the task in an
// undefined state; the stale-claim reaper will requeue it.
func (d *Driver) Run(ctx context.Context, task *store.Task) error {
	log := d.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldInvoiceID, task.InvoiceID))

	if task.Type != store.TaskProcessInvoice {
		log.Warn("unsupported task type", logging.String("task_type", string(task.Type)))
		return d.store.MarkTaskError(ctx, task.ID, reasonUnsupportedTaskType)
	}

	inv, err := d.store.GetInvoice(ctx, task.InvoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		log.Warn("invoice missing for task")
		return d.store.MarkTaskError(ctx, task.ID, reasonInvoiceNotFound)
	}

	switch {
	case inv.Status.IsTerminal():
		// Nothing left to do; reprocessing a finished invoice is a no-op.
		return d.store.MarkTaskDone(ctx, task.ID)
	case inv.Status == invoice.StatusApproved:
		if _, err := d.store.Transition(ctx, inv.ID, invoice.StatusPosted, "posting", "approved invoice posted"); err != nil {
			return err
		}
		log.Info("invoice posted")
		return d.store.MarkTaskDone(ctx, task.ID)
	case inv.Status == invoice.StatusReadyForPosting, inv.Status == invoice.StatusPendingApproval:
		// Waiting on a human decision or an external posting run.
		return d.store.MarkTaskDone(ctx, task.ID)
	}

	for _, stage := range d.stages {
		// Re-read so each stage sees the effects of the previous one.
		inv, err = d.store.GetInvoice(ctx, task.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return d.store.MarkTaskError(ctx, task.ID, reasonInvoiceNotFound)
		}

		if skipStage(stage.Name(), inv) {
			continue
		}

		resp, invokeErr := stage.Invoke(ctx, inv)
		if invokeErr != nil {
			log.Error("stage failed", logging.Error(invokeErr),
				logging.String(logging.FieldStage, stage.Name()))
			resp = agent.Failed(stage.Name(), invokeErr)
		}
		if err := d.store.AppendResponse(ctx, inv.ID, resp); err != nil {
			return err
		}

		if resp.Halts() {
			if err := d.escalator.Escalate(ctx, inv, resp); err != nil {
				return err
			}
			return d.store.MarkTaskDone(ctx, task.ID)
		}

		if next, ok := successStatus[stage.Name()]; ok {
			if _, err := d.store.Transition(ctx, inv.ID, next, stage.Name(), "stage completed"); err != nil {
				return err
			}
		}
	}

	// All stages passed. Leave parked or finished invoices alone.
	inv, err = d.store.GetInvoice(ctx, task.InvoiceID)
	if err != nil {
		return err
	}
	if inv != nil && !inv.Status.IsTerminal() && inv.Status != invoice.StatusPendingApproval {
		if _, err := d.store.Transition(ctx, inv.ID, invoice.StatusReadyForPosting, "driver", "pipeline complete"); err != nil {
			return err
		}
		log.Info("invoice ready for posting")
	}
	return d.store.MarkTaskDone(ctx, task.ID)
}

// skipStage drops PO-dependent stages for invoices without a PO reference.
func skipStage(name string, inv *invoice.Invoice) bool {
	switch name {
	case "po_match", "coding":
		return !inv.HasPO()
	default:
		return false
	}
}
