package pimsync

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of a sync failure
type ErrorType string

const (
	ErrorTypeTransientRemote   ErrorType = "transient_remote"
	ErrorTypeCacheCorruption   ErrorType = "cache_corruption"
	ErrorTypeDataInconsistency ErrorType = "data_inconsistency"
	ErrorTypeEntityProcessing  ErrorType = "entity_processing"
	ErrorTypeConfiguration     ErrorType = "configuration"
)

// SyncError is the error type raised by every job step.
type SyncError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Entity  string         `json:"entity,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SyncError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s]", e.Type, e.Code)
	if e.Entity != "" {
		fmt.Fprintf(&b, " entity %s", e.Entity)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field '%s'", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a SyncError
func (e *SyncError) WithDetail(key string, value any) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a SyncError
func (e *SyncError) WithCause(cause error) *SyncError {
	e.Cause = cause
	return e
}

// WithEntity adds the code or identifier of the entity being processed
func (e *SyncError) WithEntity(entity string) *SyncError {
	e.Entity = entity
	return e
}

// WithField adds attribute or setting context
func (e *SyncError) WithField(field string) *SyncError {
	e.Field = field
	return e
}

// Error codes
const (
	// Remote API
	ErrCodeRetryExhausted  = "RETRY_EXHAUSTED"
	ErrCodeTokenFailed     = "TOKEN_FAILED"
	ErrCodeCircuitOpen     = "CIRCUIT_OPEN"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"

	// Cache
	ErrCodeCacheUnreadable = "CACHE_UNREADABLE"
	ErrCodeCacheCorrupted  = "CACHE_CORRUPTED"

	// Data
	ErrCodeMissingModel       = "MISSING_MODEL_PRODUCT"
	ErrCodeMissingAsset       = "MISSING_ASSET"
	ErrCodeParentCycle        = "PARENT_CYCLE"
	ErrCodeInvalidDefinition  = "INVALID_ATTRIBUTE_DEFINITION"
	ErrCodeMissingFamily      = "MISSING_FAMILY_VARIANT"
	ErrCodeTransformFailed    = "TRANSFORM_FAILED"
	ErrCodeEntityFailed       = "ENTITY_FAILED"
	ErrCodeMissingSetting     = "MISSING_SETTING"
	ErrCodeInvalidSetting     = "INVALID_SETTING"
	ErrCodeUnsupportedBackend = "UNSUPPORTED_BACKEND"
)

// ============================================================================
// SyncError Constructors
// ============================================================================

// NewSyncError creates a new SyncError
func NewSyncError(errorType ErrorType, code, message string) *SyncError {
	return &SyncError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewRetryExhaustedError is raised when a remote call keeps failing after the retry limit.
func NewRetryExhaustedError(operation string, attempts int, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeTransientRemote,
		Code:    ErrCodeRetryExhausted,
		Message: fmt.Sprintf("%s failed after %d attempts", operation, attempts),
		Cause:   cause,
		Details: map[string]any{
			"operation": operation,
			"attempts":  attempts,
		},
	}
}

// NewTokenError creates a token acquisition error
func NewTokenError(attempts int, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeTransientRemote,
		Code:    ErrCodeTokenFailed,
		Message: fmt.Sprintf("could not obtain access token after %d attempts", attempts),
		Cause:   cause,
		Details: map[string]any{"attempts": attempts},
	}
}

// NewCircuitOpenError reports a fail-fast rejection while the remote API is considered down.
func NewCircuitOpenError(operation string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeTransientRemote,
		Code:    ErrCodeCircuitOpen,
		Message: fmt.Sprintf("%s rejected: remote API circuit is open", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewCacheCorruptionError describes an unreadable cache entry. Callers log it and treat it as a miss.
func NewCacheCorruptionError(key string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeCacheCorruption,
		Code:    ErrCodeCacheCorrupted,
		Message: "cache entry could not be decoded",
		Field:   key,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewDataInconsistencyError creates an operator-facing error for a missing prerequisite.
func NewDataInconsistencyError(code, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeDataInconsistency,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewMissingModelError reports a model product missing from both cache and API.
func NewMissingModelError(modelCode string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeDataInconsistency,
		Code:    ErrCodeMissingModel,
		Message: fmt.Sprintf("model product '%s' could not be located, run the model products step again without clearing caches", modelCode),
		Entity:  modelCode,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewEntityProcessingError wraps a per-entity failure that downgrades the job to WARN.
func NewEntityProcessingError(entity string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeEntityProcessing,
		Code:    ErrCodeEntityFailed,
		Message: "entity processing failed",
		Entity:  entity,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewConfigurationError reports a required setting that is absent or invalid.
func NewConfigurationError(field, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeConfiguration,
		Code:    ErrCodeMissingSetting,
		Message: message,
		Field:   field,
		Details: make(map[string]any),
	}
}

// ============================================================================
// EntityErrors
// ============================================================================

// EntityErrors collects per-entity failures of one job step with statistics.
type EntityErrors struct {
	Errors       []*SyncError `json:"errors"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
}

// NewEntityErrors creates an empty collection
func NewEntityErrors() *EntityErrors {
	return &EntityErrors{
		Errors: make([]*SyncError, 0),
	}
}

// Error implements the error interface for EntityErrors
func (ee *EntityErrors) Error() string {
	if len(ee.Errors) == 0 {
		return "no entity errors"
	}
	if len(ee.Errors) == 1 {
		return fmt.Sprintf("entity processing failed: %s (success: %d/%d)",
			ee.Errors[0].Error(), ee.SuccessCount, ee.Total())
	}
	return fmt.Sprintf("entity processing failed: %d errors (success: %d/%d)",
		len(ee.Errors), ee.SuccessCount, ee.Total())
}

// Add records a failure
func (ee *EntityErrors) Add(err *SyncError) {
	ee.Errors = append(ee.Errors, err)
	ee.FailureCount++
}

// Succeeded records a processed entity
func (ee *EntityErrors) Succeeded() {
	ee.SuccessCount++
}

// HasErrors returns true if there are any errors
func (ee *EntityErrors) HasErrors() bool {
	return len(ee.Errors) > 0
}

// Total returns the number of entities seen
func (ee *EntityErrors) Total() int {
	return ee.SuccessCount + ee.FailureCount
}

// Status returns WARN when at least one entity failed.
func (ee *EntityErrors) Status() JobStatus {
	if ee.HasErrors() {
		return JobStatusWarn
	}
	return JobStatusOK
}

// GetErrorSummary returns error counts grouped by code
func (ee *EntityErrors) GetErrorSummary() map[string]int {
	summary := make(map[string]int)
	for _, err := range ee.Errors {
		summary[err.Code]++
	}
	return summary
}

// ============================================================================
// Error checking utilities
// ============================================================================

// IsFatal reports whether err must abort the current job step.
// Entity processing failures and cache corruption are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Type != ErrorTypeEntityProcessing && se.Type != ErrorTypeCacheCorruption
	}
	return true
}

// IsErrorType checks if an error chain carries a SyncError of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// IsTransientRemoteError checks if an error is a remote API failure
func IsTransientRemoteError(err error) bool {
	return IsErrorType(err, ErrorTypeTransientRemote)
}

// IsDataInconsistencyError checks if an error is a missing prerequisite failure
func IsDataInconsistencyError(err error) bool {
	return IsErrorType(err, ErrorTypeDataInconsistency)
}

// IsConfigurationError checks if an error is a configuration failure
func IsConfigurationError(err error) bool {
	return IsErrorType(err, ErrorTypeConfiguration)
}
