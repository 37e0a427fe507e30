package api

import "product-recommender/internal/models"

type RecommendRequest struct {
	Query string `json:"query"`
	ID    string `json:"id,omitempty"`
}

type RecommendResponse struct {
	RequestID      string                 `json:"request_id"`
	Recommendation *models.Recommendation `json:"recommendation"`
	SpeechText     string                 `json:"speech_text,omitempty"`
}

type FailureResponse struct {
	RequestID string    `json:"request_id,omitempty"`
	Error     ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
