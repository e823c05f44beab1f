package models

import "time"

type ErrorKind string

const (
	// ErrorKindInvalidResponse marks replies that were not a valid classification.
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
	// ErrorKindProvider marks model calls that failed after retries.
	ErrorKindProvider ErrorKind = "provider"
)

// ResultError is the per-conversation error marker stored in place of a classification.
type ResultError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is one entry of the analysis output file.
type Result struct {
	ConversationID string          `json:"conversation_id"`
	Classification *Classification `json:"llm_classification,omitempty"`
	Error          *ResultError    `json:"error,omitempty"`
}

func (r *Result) Failed() bool {
	return r.Error != nil || r.Classification == nil
}

// Label is a human-authored ground truth for one conversation.
type Label struct {
	ConversationID string         `json:"conversation_id"`
	GroundTruth    Classification `json:"ground_truth"`
	LabeledBy      string         `json:"labeled_by,omitempty"`
	LabeledAt      time.Time      `json:"labeled_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
