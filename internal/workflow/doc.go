// Package workflow drives invoices through the stage pipeline.
//
// A Manager runs a pool of workers that claim process_invoice tasks from the
// store. Each claimed task is handed to the Driver, which invokes the stages
// in order, appends every response to the workflow log, applies the resulting
// status transitions, and escalates to a human task when a stage halts.
// Tasks of type human_review and approval are never claimed by workers; they
// wait for a person to resolve them through the API.
package workflow
