package explain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"apflow/internal/agent"
	"apflow/internal/invoice"
)

const systemPrompt = "You are an accounts payable assistant. Explain why an invoice " +
	"was stopped for human review. Be concrete and reference the findings you are given."

// buildPrompt assembles a compact user prompt from the invoice, the response
// that triggered the escalation, and any retrieved similar cases.
func buildPrompt(inv *invoice.Invoice, trigger agent.Response, hits []Hit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice: %s\n", inv.Header.InvoiceRef)
	fmt.Fprintf(&b, "Vendor: %s, currency %s, amount %.2f\n",
		inv.Header.VendorNumber, inv.Header.Currency, inv.Header.Amount)
	fmt.Fprintf(&b, "Stage %q reported status %q", trigger.Agent, trigger.Status)
	if len(trigger.Result) > 0 {
		fmt.Fprintf(&b, " with findings: %s", string(trigger.Result))
	}
	b.WriteString("\n")
	if len(inv.Items) > 0 {
		fmt.Fprintf(&b, "First line: %s\n", inv.Items[0].Description)
	}
	if len(hits) > 0 {
		b.WriteString("\nSimilar cases: ")
		refs := make([]string, 0, len(hits))
		for i, hit := range hits {
			if i >= 3 {
				break
			}
			refs = append(refs, fmt.Sprintf("%s (score=%.2f)", hit.ID, hit.Score))
		}
		b.WriteString(strings.Join(refs, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nProvide a short, actionable explanation in 1-3 sentences, " +
		"list the evidence, and suggest a next action. Respond in plain text.")
	return b.String()
}

// promptHash fingerprints a prompt for telemetry and caching.
func promptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:12]
}
