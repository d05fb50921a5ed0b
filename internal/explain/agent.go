// Package explain generates a human-readable explanation for an escalated
// invoice by combining retrieval over past cases with an LLM completion.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"apflow/internal/agent"
	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/logging"
	"apflow/internal/services/llm"
)

// Completer is the LLM surface the explain stage needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Result is the stage-specific payload.
type Result struct {
	Explanation string `json:"explanation"`
	Sources     []Hit  `json:"sources,omitempty"`
	PromptHash  string `json:"prompt_hash"`
	Model       string `json:"llm_model,omitempty"`
}

// Agent builds explanations. It is best-effort by design: an LLM outage
// degrades to a placeholder explanation instead of blocking the escalation.
type Agent struct {
	llm       Completer
	retriever Retriever
	maxHits   int
	logger    *slog.Logger
}

// New builds the explain stage. The retriever may be nil, which disables
// evidence lookup.
func New(completer Completer, retriever Retriever, cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Agent{
		llm:       completer,
		retriever: retriever,
		maxHits:   cfg.Explain.MaxRetrievalHits,
		logger:    logger.With(logging.String(logging.FieldComponent, "explain")),
	}
}

// Name identifies explain responses in the workflow log.
func (a *Agent) Name() string { return "explain" }

// Explain produces an explanation response for the stage response that
// triggered an escalation. A rate-limited LLM yields a rate_limited response;
// other LLM failures degrade to a completed response carrying the error text.
func (a *Agent) Explain(ctx context.Context, inv *invoice.Invoice, trigger agent.Response) (agent.Response, error) {
	resp := agent.NewResponse(a.Name())

	var hits []Hit
	if a.retriever != nil {
		query := retrievalQuery(inv, trigger)
		hits = a.retriever.Search(query, a.maxHits)
	}

	prompt := buildPrompt(inv, trigger, hits)
	hash := promptHash(prompt)

	result := Result{
		Sources:    hits,
		PromptHash: hash,
	}
	if a.llm != nil {
		result.Model = a.llm.Model()
	}

	explanation, err := a.complete(ctx, prompt)
	if errors.Is(err, llm.ErrRateLimited) {
		a.logger.Warn("llm rate limited",
			logging.String(logging.FieldInvoiceID, inv.ID),
			logging.String(logging.FieldErrorHint, "retry after backoff or resolve the task manually"))
		resp.Status = agent.StatusRateLimited
		resp.Errors = []string{err.Error()}
		result.Explanation = "[rate_limited]"
		if encodeErr := resp.SetResult(result); encodeErr != nil {
			return resp, encodeErr
		}
		return resp, nil
	}
	if err != nil {
		a.logger.Warn("explanation degraded", logging.Error(err),
			logging.String(logging.FieldInvoiceID, inv.ID))
		explanation = fmt.Sprintf("[explain_error]: %v", err)
	}
	if explanation == "" {
		explanation = "[no explanation generated]"
	}
	result.Explanation = explanation

	resp.Status = agent.StatusCompleted
	resp.Score = 0.6
	if len(hits) > 0 {
		resp.Score = 0.9
	}
	if err := resp.SetResult(result); err != nil {
		return resp, err
	}

	if a.retriever != nil {
		a.retriever.Index(inv.ID, retrievalQuery(inv, trigger))
	}
	return resp, nil
}

func (a *Agent) complete(ctx context.Context, prompt string) (string, error) {
	if a.llm == nil {
		return "", errors.New("no llm configured")
	}
	return a.llm.Complete(ctx, systemPrompt, prompt)
}

func retrievalQuery(inv *invoice.Invoice, trigger agent.Response) string {
	parts := []string{inv.Header.InvoiceRef, inv.Header.VendorNumber, trigger.Agent, string(trigger.Status)}
	if len(trigger.Result) > 0 {
		parts = append(parts, string(trigger.Result))
	}
	if len(inv.Items) > 0 {
		parts = append(parts, inv.Items[0].Description)
	}
	return strings.Join(parts, " ")
}
