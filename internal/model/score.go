package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoreResult is the output of one scoring pass. Produced fresh on every
// evaluation and never cached by identity inside the engine.
type ScoreResult struct {
	QualityScore    float64 `json:"quality_score"`
	TrustScore      float64 `json:"trust_score"`
	MeetsConditions bool    `json:"meets_conditions"`
}

// SkipReason explains a non-rewarding outcome.
type SkipReason string

const (
	// ReasonConditionsNotMet: the message failed one or more gate conditions.
	ReasonConditionsNotMet SkipReason = "conditions_not_met"
	// ReasonDuplicate: a reward for this message identity was already issued
	// (or is being issued concurrently).
	ReasonDuplicate SkipReason = "duplicate"
	// ReasonSelfMessage: the message was authored by the evaluating agent.
	ReasonSelfMessage SkipReason = "self_message"
)

// IssueReceipt is the opaque result of the external reward API call.
type IssueReceipt struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// EvaluationOutcome is the final record of one evaluate-and-maybe-reward pass.
type EvaluationOutcome struct {
	Ref      MessageRef    `json:"ref"`
	Score    ScoreResult   `json:"score"`
	Rewarded bool          `json:"rewarded"`
	Reason   SkipReason    `json:"reason,omitempty"`
	Receipt  *IssueReceipt `json:"receipt,omitempty"`
}

// ProcessedReward is the immutable record persisted once a reward has been
// issued for a message identity. Created exactly once, never updated.
type ProcessedReward struct {
	Key         uuid.UUID    `json:"key"`
	Ref         MessageRef   `json:"ref"`
	AuthorID    string       `json:"author_id"`
	Score       ScoreResult  `json:"score"`
	Receipt     IssueReceipt `json:"receipt"`
	ProcessedAt time.Time    `json:"processed_at"`
}
