package agent

import (
	"context"

	"apflow/internal/invoice"
)

// Agent is the synchronous invocation contract implemented by every pipeline
// stage. Invoke must not retain the invoice; errors are converted by the
// driver into synthetic failed responses so the audit trail stays complete.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, inv *invoice.Invoice) (Response, error)
}
