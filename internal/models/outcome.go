package models

import "time"

// Outcome summarises one finished request for downstream consumers.
type Outcome struct {
	RequestID   string             `json:"requestId"`
	Route       string             `json:"route"`
	Kind        RecommendationKind `json:"kind,omitempty"`
	Citations   []string           `json:"citations,omitempty"`
	ErrorCode   string             `json:"errorCode,omitempty"`
	FailedStage string             `json:"failedStage,omitempty"`
	DurationMs  int64              `json:"durationMs"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Succeeded reports whether the request ended in a Recommendation.
func (o Outcome) Succeeded() bool {
	return o.ErrorCode == ""
}
