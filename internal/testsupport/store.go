package testsupport

import (
	"context"
	"testing"

	"apflow/internal/config"
	"apflow/internal/invoice"
	"apflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewInvoice builds a well-formed invoice fixture with two lines summing to
// the header amount.
func NewInvoice(id string) *invoice.Invoice {
	return &invoice.Invoice{
		ID: id,
		Header: invoice.Header{
			InvoiceRef:       "INV-" + id,
			InvoiceDate:      "2026-08-01",
			VendorNumber:     "V100",
			Currency:         "EUR",
			Amount:           150,
			BuyerCompanyCode: "1000",
		},
		Items: []invoice.LineItem{
			{Description: "widgets", Quantity: 10, Amount: 100},
			{Description: "shipping", Quantity: 1, Amount: 50},
		},
		Status: invoice.StatusReceived,
	}
}

// MustIngest persists an invoice fixture and fails the test on error.
func MustIngest(t testing.TB, st *store.Store, inv *invoice.Invoice) {
	t.Helper()

	if err := st.CreateInvoice(context.Background(), inv, "test"); err != nil {
		t.Fatalf("store.CreateInvoice: %v", err)
	}
}
