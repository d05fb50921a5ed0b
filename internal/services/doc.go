// Package services holds cross-cutting helpers shared by pipeline stages and
// the workflow manager: error sentinels with a Wrap helper for consistent
// classification, and context carriers for task, invoice, stage, and request
// identifiers that the logging package projects into structured fields.
package services
