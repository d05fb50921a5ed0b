// Package logging provides slog-based structured logging helpers shared by
// the daemon, the workflow manager, and the CLI.
//
// It standardizes attribute keys (component, task_id, invoice_id, stage,
// correlation_id) so log lines from different packages stay queryable, and it
// augments loggers with fields carried in the request context. Handlers are
// selected by configuration: JSON for machine consumption, text for console
// use, or a no-op handler in tests.
package logging
