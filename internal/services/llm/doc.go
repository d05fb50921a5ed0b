// Package llm wraps an OpenAI-compatible chat completions endpoint for the
// explanation generator. The client retries transient failures with
// exponential backoff, honors Retry-After on 429 responses, and surfaces
// exhausted rate limits as ErrRateLimited so callers can record the outcome
// instead of failing the escalation.
package llm
