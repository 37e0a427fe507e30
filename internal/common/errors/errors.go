// Package errors provides the typed error taxonomy of the recommendation pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode identifies a failure class across stages.
type ErrorCode string

const (
	ErrCodeSchemaViolation      ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeServiceUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
	ErrCodeGroundingViolation   ErrorCode = "GROUNDING_VIOLATION"

	ErrCodeRouterUnavailable   ErrorCode = "ROUTER_UNAVAILABLE"
	ErrCodePlannerUnavailable  ErrorCode = "PLANNER_UNAVAILABLE"
	ErrCodeAnswererUnavailable ErrorCode = "ANSWERER_UNAVAILABLE"

	ErrCodeInvalidQuery     ErrorCode = "INVALID_QUERY"
	ErrCodeInvalidPlan      ErrorCode = "INVALID_PLAN"
	ErrCodeStateViolation   ErrorCode = "STATE_VIOLATION"
	ErrCodeRequestCancelled ErrorCode = "REQUEST_CANCELLED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError is a structured pipeline error. Two StandardErrors match
// under errors.Is when their codes are equal.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.Cause }

func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a key/value and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrSchemaViolation      = &StandardError{Code: ErrCodeSchemaViolation}
	ErrServiceUnavailable   = &StandardError{Code: ErrCodeServiceUnavailable}
	ErrRetrievalUnavailable = &StandardError{Code: ErrCodeRetrievalUnavailable}
	ErrGroundingViolation   = &StandardError{Code: ErrCodeGroundingViolation}
	ErrRouterUnavailable    = &StandardError{Code: ErrCodeRouterUnavailable}
	ErrPlannerUnavailable   = &StandardError{Code: ErrCodePlannerUnavailable}
	ErrAnswererUnavailable  = &StandardError{Code: ErrCodeAnswererUnavailable}
	ErrInvalidQuery         = &StandardError{Code: ErrCodeInvalidQuery}
	ErrStateViolation       = &StandardError{Code: ErrCodeStateViolation}
	ErrRequestCancelled     = &StandardError{Code: ErrCodeRequestCancelled}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewSchemaViolationError reports completion output that failed validation.
func NewSchemaViolationError(schemaID string, problems []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaViolation,
		Message:   "Completion output does not match schema",
		Details:   fmt.Sprintf("schema: %s, problems: %s", schemaID, strings.Join(problems, "; ")),
		Retryable: true,
		Metadata:  map[string]interface{}{"schema": schemaID},
		Timestamp: time.Now().UTC(),
	}
}

// NewServiceUnavailableError reports a transport failure or timeout of an external call.
func NewServiceUnavailableError(service string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeServiceUnavailable,
		Message:   fmt.Sprintf("%s is unavailable", service),
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"service": service},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewRetrievalUnavailableError reports that every configured retrieval source failed.
func NewRetrievalUnavailableError(sourceErrs map[string]error) *StandardError {
	parts := make([]string, 0, len(sourceErrs))
	for source, err := range sourceErrs {
		parts = append(parts, fmt.Sprintf("%s: %v", source, err))
	}
	return &StandardError{
		Code:      ErrCodeRetrievalUnavailable,
		Message:   "All retrieval sources failed",
		Details:   strings.Join(parts, "; "),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGroundingViolationError reports citations absent from the retrieval set.
func NewGroundingViolationError(unknownIDs []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeGroundingViolation,
		Message:   "Draft cites products outside the retrieval set",
		Details:   fmt.Sprintf("unknown ids: %s", strings.Join(unknownIDs, ",")),
		Retryable: true,
		Metadata:  map[string]interface{}{"unknownIds": unknownIDs},
		Timestamp: time.Now().UTC(),
	}
}

// NewStageUnavailableError escalates an exhausted stage retry budget.
func NewStageUnavailableError(code ErrorCode, attempts int, err error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   "Stage retry budget exhausted",
		Details:   fmt.Sprintf("attempts: %d, last error: %v", attempts, err),
		Retryable: false,
		Metadata:  map[string]interface{}{"attempts": attempts},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewInvalidQueryError reports unusable input text.
func NewInvalidQueryError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidQuery,
		Message:   "Query is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPlanError reports a plan that breaks its own invariants.
func NewInvalidPlanError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPlan,
		Message:   "Retrieval plan is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateViolationError reports an illegal pipeline state transition.
func NewStateViolationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateViolation,
		Message:   "Pipeline state violation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCancelledError reports request-level cancellation.
func NewCancelledError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRequestCancelled,
		Message:   "Request was cancelled",
		Details:   fmt.Sprint(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// CodeOf extracts the code of the outermost StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// GetRetryCount returns the default stage-local retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeServiceUnavailable:
		return 3
	case ErrCodeSchemaViolation, ErrCodeGroundingViolation:
		return 2
	default:
		return 0
	}
}

// IsRetryableErrorCode reports whether a stage may retry on this code.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	return IsRetryableErrorCode(CodeOf(err))
}

// GetErrorCategory groups codes for metrics labels.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasSuffix(codeStr, "_UNAVAILABLE"):
		return "availability"
	case strings.Contains(codeStr, "VIOLATION"):
		return "contract"
	case strings.HasPrefix(codeStr, "INVALID_"):
		return "validation"
	case code == ErrCodeRequestCancelled:
		return "cancellation"
	default:
		return "system"
	}
}
