// Package invoice defines the invoice document model, the canonical status
// vocabulary with its legal-transition table, and ingestion normalization.
//
// The status field on an invoice is a cached projection: the append-only
// workflow log owned by the store is the source of truth, and the last
// status-change entry always matches the field. The transition table is
// consulted on every status write; illegal attempts are recorded rather than
// rejected so the audit trail captures them.
package invoice
