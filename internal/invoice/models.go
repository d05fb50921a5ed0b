package invoice

import (
	"strings"
	"time"
)

// Header carries the invoice-level fields extracted during capture.
type Header struct {
	InvoiceRef       string  `json:"invoice_ref"`
	InvoiceDate      string  `json:"invoice_date"`
	VendorNumber     string  `json:"vendor_number"`
	Currency         string  `json:"currency"`
	Amount           float64 `json:"amount"`
	PONumber         string  `json:"po_number,omitempty"`
	BuyerCompanyCode string  `json:"buyer_company_code,omitempty"`
}

// LineItem is a single invoice line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Amount      float64 `json:"amount"`
}

// Invoice is the document the pipeline operates on. The ID is stable across
// re-ingestion so re-enqueued tasks always resolve to the same record.
type Invoice struct {
	ID        string     `json:"id"`
	Header    Header     `json:"header"`
	Items     []LineItem `json:"items"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ItemTotal sums the line item amounts.
func (inv *Invoice) ItemTotal() float64 {
	var total float64
	for _, item := range inv.Items {
		total += item.Amount
	}
	return total
}

// HasPO reports whether the invoice references a purchase order.
func (inv *Invoice) HasPO() bool {
	return strings.TrimSpace(inv.Header.PONumber) != ""
}
