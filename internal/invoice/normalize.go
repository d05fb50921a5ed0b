package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RawDocument is the loosely-shaped JSON accepted at ingestion. Capture
// systems disagree on field names ("lines" vs "items", header amount vs a
// grand_total object), so normalization reconciles them before the pipeline
// ever sees the document.
type RawDocument struct {
	ID     string    `json:"id"`
	Header RawHeader `json:"header"`
	Lines  []RawLine `json:"lines"`
	Items  []RawLine `json:"items"`
}

// RawHeader mirrors Header with tolerant value types.
type RawHeader struct {
	InvoiceRef       string          `json:"invoice_ref"`
	InvoiceNumber    string          `json:"invoice_number"`
	InvoiceDate      string          `json:"invoice_date"`
	VendorNumber     string          `json:"vendor_number"`
	Currency         string          `json:"currency"`
	Amount           json.RawMessage `json:"amount"`
	GrandTotal       json.RawMessage `json:"grand_total"`
	PONumber         string          `json:"po_number"`
	PO               string          `json:"po"`
	POReference      string          `json:"po_reference"`
	BuyerCompanyCode string          `json:"buyer_company_code"`
}

// RawLine mirrors LineItem with tolerant value types.
type RawLine struct {
	Description string          `json:"description"`
	ItemText    string          `json:"item_text"`
	Quantity    json.RawMessage `json:"quantity"`
	Amount      json.RawMessage `json:"amount"`
}

// Normalize converts a raw capture document into the canonical Invoice shape.
// It prefers "lines" over "items", falls back from header.amount to
// grand_total, and reconciles the PO reference aliases.
func Normalize(raw RawDocument) (*Invoice, error) {
	id := strings.TrimSpace(raw.ID)
	ref := firstNonEmpty(raw.Header.InvoiceRef, raw.Header.InvoiceNumber)
	if id == "" {
		id = ref
	}
	if id == "" {
		return nil, errors.New("invoice id or header.invoice_ref required")
	}

	rawLines := raw.Lines
	if len(rawLines) == 0 {
		rawLines = raw.Items
	}
	items := make([]LineItem, 0, len(rawLines))
	for i, line := range rawLines {
		amount, err := parseAmount(line.Amount)
		if err != nil {
			return nil, fmt.Errorf("line %d: amount: %w", i, err)
		}
		qty, err := parseAmount(line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("line %d: quantity: %w", i, err)
		}
		items = append(items, LineItem{
			Description: firstNonEmpty(line.Description, line.ItemText),
			Quantity:    qty,
			Amount:      amount,
		})
	}

	amount, err := parseAmount(raw.Header.Amount)
	if err != nil {
		return nil, fmt.Errorf("header.amount: %w", err)
	}
	if amount == 0 {
		if total, totalErr := parseGrandTotal(raw.Header.GrandTotal); totalErr == nil {
			amount = total
		}
	}

	return &Invoice{
		ID: id,
		Header: Header{
			InvoiceRef:       ref,
			InvoiceDate:      strings.TrimSpace(raw.Header.InvoiceDate),
			VendorNumber:     strings.TrimSpace(raw.Header.VendorNumber),
			Currency:         strings.ToUpper(strings.TrimSpace(raw.Header.Currency)),
			Amount:           amount,
			PONumber:         firstNonEmpty(raw.Header.PONumber, raw.Header.PO, raw.Header.POReference),
			BuyerCompanyCode: strings.TrimSpace(raw.Header.BuyerCompanyCode),
		},
		Items:  items,
		Status: StatusReceived,
	}, nil
}

// parseAmount accepts numbers and numeric strings; absent values are zero.
func parseAmount(raw json.RawMessage) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, nil
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
		number, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", text)
		}
		return number, nil
	}
	return 0, fmt.Errorf("unsupported value: %s", trimmed)
}

// parseGrandTotal accepts either a bare number or a {"value": n} object.
func parseGrandTotal(raw json.RawMessage) (float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, errors.New("empty grand total")
	}
	if number, err := parseAmount(raw); err == nil && number != 0 {
		return number, nil
	}
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return 0, fmt.Errorf("unsupported grand total: %s", trimmed)
	}
	return parseAmount(wrapped.Value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
