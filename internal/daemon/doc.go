// Package daemon ties the long-running pieces together: the workflow manager,
// the HTTP API, and the lock file that enforces a single instance per data
// directory.
package daemon
