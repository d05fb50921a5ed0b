// Package store persists invoices, workflow log entries, the task queue, and
// reference masterdata in a single SQLite database.
//
// All writes that must stay consistent with each other (status changes and
// their audit entries, ingestion and its initial log entry) happen inside one
// transaction. Claiming a task uses a conditional update so that concurrent
// workers can race for the same row and exactly one wins.
package store
