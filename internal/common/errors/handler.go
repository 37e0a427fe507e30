package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// PipelineFailure is the single user-visible failure outcome of a request.
// It is distinct from any Recommendation, including "no results".
type PipelineFailure struct {
	RequestID string    `json:"requestId"`
	Stage     string    `json:"stage"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (f *PipelineFailure) Error() string {
	return fmt.Sprintf("PipelineFailure[%s] at %s: %s", f.Code, f.Stage, f.Message)
}

func (f *PipelineFailure) Unwrap() error { return f.cause }

// HTTPStatus maps the failure to a response status.
func (f *PipelineFailure) HTTPStatus() int {
	switch f.Code {
	case ErrCodeInvalidQuery:
		return http.StatusBadRequest
	case ErrCodeRequestCancelled:
		return 499
	case ErrCodeRouterUnavailable, ErrCodePlannerUnavailable, ErrCodeAnswererUnavailable,
		ErrCodeRetrievalUnavailable, ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Logger is the subset of logging the failure handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// FailureHandler converts escalated stage errors into PipelineFailures.
type FailureHandler struct {
	logger Logger
}

func NewFailureHandler(logger Logger) *FailureHandler {
	return &FailureHandler{logger: logger}
}

// Handle normalizes err and logs the internal details once. The returned
// message never contains internal details.
func (h *FailureHandler) Handle(requestID, stage string, err error) *PipelineFailure {
	stdErr := normalizeError(err)

	failure := &PipelineFailure{
		RequestID: requestID,
		Stage:     stage,
		Code:      stdErr.Code,
		Message:   userMessage(stdErr.Code),
		Retryable: stdErr.Code != ErrCodeInvalidQuery && stdErr.Code != ErrCodeRequestCancelled,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}

	if h.logger != nil {
		h.logger.Error("Pipeline request failed", map[string]interface{}{
			"requestId": requestID,
			"stage":     stage,
			"errorCode": string(stdErr.Code),
			"category":  GetErrorCategory(stdErr.Code),
			"details":   stdErr.Details,
			"error":     err.Error(),
		})
	}
	return failure
}

func normalizeError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		// Contract violations that escape a stage surface as an outage of that stage.
		if stdErr.Code == ErrCodeGroundingViolation || stdErr.Code == ErrCodeSchemaViolation {
			return NewStageUnavailableError(ErrCodeAnswererUnavailable, 0, err)
		}
		return stdErr
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return NewCancelledError(err)
	}

	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

func userMessage(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidQuery:
		return "The query could not be understood. Please rephrase it."
	case ErrCodeRequestCancelled:
		return "The request was cancelled."
	case ErrCodeRetrievalUnavailable:
		return "Product search is temporarily unavailable. Please try again shortly."
	case ErrCodeRouterUnavailable, ErrCodePlannerUnavailable, ErrCodeAnswererUnavailable, ErrCodeServiceUnavailable:
		return "The assistant is temporarily unavailable. Please try again shortly."
	default:
		return "Something went wrong while preparing your recommendation."
	}
}
