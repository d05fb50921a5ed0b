package store

import "errors"

// ErrClaimConflict indicates another worker claimed the task between the
// candidate select and the conditional update. Callers should retry.
var ErrClaimConflict = errors.New("task claimed by another worker")

// ErrInvoiceExists indicates an ingestion attempt for an invoice id that is
// already present.
var ErrInvoiceExists = errors.New("invoice already exists")

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")
