package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Vendor is the master record a validation or coding stage looks up by
// vendor number.
type Vendor struct {
	VendorNumber      string `json:"vendor_number"`
	Name              string `json:"name"`
	Blacklisted       bool   `json:"blacklisted"`
	DefaultGLAccount  string `json:"default_gl_account"`
	DefaultCostCenter string `json:"default_cost_center"`
	PaymentTerms      string `json:"payment_terms"`
}

// POLine is one line of a purchase order.
type POLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// PurchaseOrder is the master record matched against invoice lines.
type PurchaseOrder struct {
	PONumber     string   `json:"po_number"`
	VendorNumber string   `json:"vendor_number"`
	Currency     string   `json:"currency"`
	TotalAmount  float64  `json:"total_amount"`
	Lines        []POLine `json:"lines"`
}

// ApprovalRule overrides the configured auto-approve limit for one company
// code.
type ApprovalRule struct {
	CompanyCode        string  `json:"company_code"`
	AutoApproveLimit   float64 `json:"auto_approve_limit"`
	DirectorMultiplier float64 `json:"director_multiplier"`
}

// UpsertVendor inserts or replaces a vendor master record.
func (s *Store) UpsertVendor(ctx context.Context, vendor Vendor) error {
	if vendor.VendorNumber == "" {
		return errors.New("vendor number required")
	}
	blacklisted := 0
	if vendor.Blacklisted {
		blacklisted = 1
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO vendors (vendor_number, name, blacklisted, default_gl_account, default_cost_center, payment_terms, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(vendor_number) DO UPDATE SET
             name = excluded.name,
             blacklisted = excluded.blacklisted,
             default_gl_account = excluded.default_gl_account,
             default_cost_center = excluded.default_cost_center,
             payment_terms = excluded.payment_terms,
             updated_at = excluded.updated_at`,
		vendor.VendorNumber,
		vendor.Name,
		blacklisted,
		vendor.DefaultGLAccount,
		vendor.DefaultCostCenter,
		vendor.PaymentTerms,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return storeErr("upsert vendor", err)
	}
	return nil
}

// GetVendor fetches a vendor by number. Missing vendors return (nil, nil).
func (s *Store) GetVendor(ctx context.Context, vendorNumber string) (*Vendor, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT vendor_number, name, blacklisted, default_gl_account, default_cost_center, payment_terms
         FROM vendors WHERE vendor_number = ?`, vendorNumber)

	var vendor Vendor
	var blacklisted int
	err := row.Scan(
		&vendor.VendorNumber,
		&vendor.Name,
		&blacklisted,
		&vendor.DefaultGLAccount,
		&vendor.DefaultCostCenter,
		&vendor.PaymentTerms,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get vendor", err)
	}
	vendor.Blacklisted = blacklisted != 0
	return &vendor, nil
}

// UpsertPurchaseOrder inserts or replaces a purchase order.
func (s *Store) UpsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	if po.PONumber == "" {
		return errors.New("po number required")
	}
	linesJSON, err := json.Marshal(po.Lines)
	if err != nil {
		return fmt.Errorf("marshal po lines: %w", err)
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO purchase_orders (po_number, vendor_number, currency, total_amount, lines_json, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(po_number) DO UPDATE SET
             vendor_number = excluded.vendor_number,
             currency = excluded.currency,
             total_amount = excluded.total_amount,
             lines_json = excluded.lines_json,
             updated_at = excluded.updated_at`,
		po.PONumber,
		po.VendorNumber,
		po.Currency,
		po.TotalAmount,
		string(linesJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return storeErr("upsert purchase order", err)
	}
	return nil
}

// GetPurchaseOrder fetches a purchase order by number. Missing orders return
// (nil, nil).
func (s *Store) GetPurchaseOrder(ctx context.Context, poNumber string) (*PurchaseOrder, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT po_number, vendor_number, currency, total_amount, lines_json
         FROM purchase_orders WHERE po_number = ?`, poNumber)

	var po PurchaseOrder
	var linesJSON sql.NullString
	err := row.Scan(
		&po.PONumber,
		&po.VendorNumber,
		&po.Currency,
		&po.TotalAmount,
		&linesJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get purchase order", err)
	}
	if linesJSON.Valid && linesJSON.String != "" {
		if err := json.Unmarshal([]byte(linesJSON.String), &po.Lines); err != nil {
			return nil, fmt.Errorf("decode po lines: %w", err)
		}
	}
	return &po, nil
}

// UpsertApprovalRule inserts or replaces a company approval rule.
func (s *Store) UpsertApprovalRule(ctx context.Context, rule ApprovalRule) error {
	if rule.CompanyCode == "" {
		return errors.New("company code required")
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO approval_rules (company_code, auto_approve_limit, director_multiplier, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(company_code) DO UPDATE SET
             auto_approve_limit = excluded.auto_approve_limit,
             director_multiplier = excluded.director_multiplier,
             updated_at = excluded.updated_at`,
		rule.CompanyCode,
		rule.AutoApproveLimit,
		rule.DirectorMultiplier,
		time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return storeErr("upsert approval rule", err)
	}
	return nil
}

// GetApprovalRule fetches a company approval rule. Missing rules return
// (nil, nil) so callers fall back to the configured defaults.
func (s *Store) GetApprovalRule(ctx context.Context, companyCode string) (*ApprovalRule, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT company_code, auto_approve_limit, director_multiplier
         FROM approval_rules WHERE company_code = ?`, companyCode)

	var rule ApprovalRule
	err := row.Scan(&rule.CompanyCode, &rule.AutoApproveLimit, &rule.DirectorMultiplier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get approval rule", err)
	}
	return &rule, nil
}
