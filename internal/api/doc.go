// Package api exposes the operations the HTTP server and the CLI share:
// ingesting documents, resolving human tasks, reprocessing, masterdata
// loading, and read views over invoices and the task queue.
package api
