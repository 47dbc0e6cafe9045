// Package errdefs defines the analysis error taxonomy used throughout the
// pipeline, backend adapters and annotator framework.
package errdefs

import (
	"errors"
	"fmt"
	"time"
)

// Code enumerates the analysis error taxonomy.
type Code string

const (
	// CodeBackendNotAvailable is surfaced from IsAvailable; missing binary,
	// model files, or credentials. Never retried within a run.
	CodeBackendNotAvailable Code = "BACKEND_NOT_AVAILABLE"
	// CodeAnalysisFailed is a defined backend failure. Retried only if the
	// backend entry is a fallback chain.
	CodeAnalysisFailed Code = "ANALYSIS_FAILED"
	// CodeRateLimited is remote-API pushback; the OCR stage handles it like
	// AnalysisFailed and falls back to the next name in the chain.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeUnsupportedMimetype is a programming error if reached.
	CodeUnsupportedMimetype Code = "UNSUPPORTED_MIMETYPE"
	// CodeUnsupportedOperation is a granularity mismatch (page vs document).
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	// CodeIO is a transient I/O failure; retried once per item.
	CodeIO Code = "IO"
	// CodeModelNotFound maps to BackendNotAvailable at the call site.
	CodeModelNotFound Code = "MODEL_NOT_FOUND"
	// CodeImageError maps to AnalysisFailed at the call site.
	CodeImageError Code = "IMAGE_ERROR"
)

// AnalysisError is a structured error carrying a taxonomy Code, the item it
// happened to, and optional retry/backend metadata.
type AnalysisError struct {
	Code       Code
	Message    string
	ItemID     string
	Backend    string
	RetryAfter time.Duration
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// ToMap flattens the error for storage alongside a failed AnalysisCompletion
// or PageOcrResult row.
func (e *AnalysisError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.Backend != "" {
		result["backend"] = e.Backend
	}
	for k, v := range e.Details {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}

// Is reports whether err carries the given taxonomy Code.
func Is(err error, code Code) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf extracts the taxonomy Code from err, or "" if err isn't an
// *AnalysisError.
func CodeOf(err error) Code {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func NewBackendNotAvailable(backend, hint string) *AnalysisError {
	return &AnalysisError{
		Code:      CodeBackendNotAvailable,
		Message:   hint,
		Backend:   backend,
		Timestamp: time.Now(),
	}
}

func NewAnalysisFailed(backend, itemID, message string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      CodeAnalysisFailed,
		Message:   message,
		Backend:   backend,
		ItemID:    itemID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewRateLimited(backend string, retryAfter time.Duration) *AnalysisError {
	return &AnalysisError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("%s rate limited", backend),
		Backend:    backend,
		RetryAfter: retryAfter,
		Timestamp:  time.Now(),
	}
}

func NewUnsupportedMimetype(backend, mimeType string) *AnalysisError {
	return &AnalysisError{
		Code:      CodeUnsupportedMimetype,
		Message:   fmt.Sprintf("unsupported mimetype: %s", mimeType),
		Backend:   backend,
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"mime_type": mimeType},
	}
}

func NewUnsupportedOperation(backend, operation string) *AnalysisError {
	return &AnalysisError{
		Code:      CodeUnsupportedOperation,
		Message:   fmt.Sprintf("%s does not support %s", backend, operation),
		Backend:   backend,
		Timestamp: time.Now(),
	}
}

func NewIO(itemID string, cause error) *AnalysisError {
	return &AnalysisError{
		Code:      CodeIO,
		Message:   "I/O failure",
		ItemID:    itemID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// FromOcrError classifies an underlying OCR/ASR client error into the
// taxonomy, matching the ModelNotFound -> BackendNotAvailable and
// ImageError -> AnalysisFailed mappings named in the taxonomy.
func FromOcrError(backend string, cause error) *AnalysisError {
	switch {
	case errors.Is(cause, ErrModelNotFound):
		return &AnalysisError{Code: CodeBackendNotAvailable, Message: "model not found", Backend: backend, Timestamp: time.Now(), Cause: cause}
	case errors.Is(cause, ErrImage):
		return &AnalysisError{Code: CodeAnalysisFailed, Message: "image decode failed", Backend: backend, Timestamp: time.Now(), Cause: cause}
	default:
		return NewAnalysisFailed(backend, "", cause.Error(), cause)
	}
}

// Sentinel causes backends can wrap with fmt.Errorf("...: %w", ErrModelNotFound).
var (
	ErrModelNotFound = errors.New("model not found")
	ErrImage         = errors.New("image error")
)

// ErrAlreadyClaimed is returned by the work queue when another worker holds
// the claim for a document.
var ErrAlreadyClaimed = errors.New("document already claimed")
