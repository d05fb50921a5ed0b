// Package agent defines the uniform contract every pipeline stage implements
// and the response envelope the orchestrator consumes.
//
// A stage is a pure function of the invoice plus whatever masterdata lookups
// its collaborator performs; the driver treats it as a black box and branches
// only on the response status. Responses are immutable once appended to the
// workflow log.
package agent
