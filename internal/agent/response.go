package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResponseSchemaVersion tags serialized responses so stage-specific result
// payloads can evolve without breaking old log entries.
const ResponseSchemaVersion = 1

// ResponseStatus is the closed set of outcomes a stage can report.
type ResponseStatus string

const (
	StatusCompleted   ResponseStatus = "completed"
	StatusPartial     ResponseStatus = "partial"
	StatusNeedsHuman  ResponseStatus = "needs_human"
	StatusFailed      ResponseStatus = "failed"
	StatusRateLimited ResponseStatus = "rate_limited"
)

// Response is the envelope every stage returns and the unit appended to the
// workflow log.
type Response struct {
	Agent         string          `json:"agent"`
	Status        ResponseStatus  `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	NextAgent     string          `json:"next_agent,omitempty"`
	Score         float64         `json:"score"`
	Errors        []string        `json:"errors,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion int             `json:"schema_version"`
}

// NewResponse builds a response envelope with the canonical defaults filled
// in. Callers set Status, Result, and Score afterward.
func NewResponse(agentName string) Response {
	return Response{
		Agent:         agentName,
		Status:        StatusFailed,
		Score:         0,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: ResponseSchemaVersion,
	}
}

// Failed builds the synthetic response the driver records when a stage
// returns an error instead of an envelope.
func Failed(agentName string, err error) Response {
	resp := NewResponse(agentName)
	resp.Status = StatusFailed
	if err != nil {
		resp.Errors = []string{err.Error()}
	}
	return resp
}

// SetResult marshals a stage-specific payload into the envelope.
func (r *Response) SetResult(payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", r.Agent, err)
	}
	r.Result = encoded
	return nil
}

// DecodeResult unmarshals the stage-specific payload into target.
func (r Response) DecodeResult(target any) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("%s response has no result", r.Agent)
	}
	if err := json.Unmarshal(r.Result, target); err != nil {
		return fmt.Errorf("decode %s result: %w", r.Agent, err)
	}
	return nil
}

// ClampScore forces the confidence score into [0, 1].
func (r *Response) ClampScore() {
	if r.Score < 0 {
		r.Score = 0
	}
	if r.Score > 1 {
		r.Score = 1
	}
}

// Halts reports whether the driver should stop running further stages.
// Anything other than a completed stage is a halt signal.
func (r Response) Halts() bool {
	return r.Status != StatusCompleted
}
