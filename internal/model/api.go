package model

import (
	"encoding/json"
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeResolutionFailed = "RESOLUTION_FAILED"
	ErrCodeIssuanceFailed   = "ISSUANCE_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// EvaluateRequest is the request body for POST /v1/evaluate.
type EvaluateRequest struct {
	URL string `json:"url"`
	// Rules carries optional partial RuleSet overrides, merged over the
	// loaded defaults for this call only. Kept raw so the handler decodes
	// it with the rules schema.
	Rules json.RawMessage `json:"rules,omitempty"`
}

// EvaluateBatchRequest is the request body for POST /v1/evaluate/batch.
type EvaluateBatchRequest struct {
	URLs []string `json:"urls"`
}

// BatchEntry pairs one URL with its outcome or error.
type BatchEntry struct {
	URL     string             `json:"url"`
	Outcome *EvaluationOutcome `json:"outcome,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Uptime  int64  `json:"uptime_seconds"`
}

// MaxContentLen bounds message content accepted into a snapshot. Platform
// messages max out well below this; the bound keeps a hostile collaborator
// from inflating token sets.
const MaxContentLen = 32 * 1024
