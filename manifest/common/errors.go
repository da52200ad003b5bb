package common

import (
	"maps"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
)

// ErrorCategory classifies a manifest error by its origin.
type ErrorCategory string

const (
	// CategoryParser covers malformed playlist syntax. Fatal to the fetch
	// that produced it, recoverable on the next scheduled cycle.
	CategoryParser ErrorCategory = "PARSER"

	// CategoryNetwork covers fetch failures. Soft per-stream unless the
	// master playlist itself failed.
	CategoryNetwork ErrorCategory = "NETWORK"

	// CategoryManifest covers semantic violations such as an unparseable
	// segment start time. Fatal to the affected stream's initialization.
	CategoryManifest ErrorCategory = "MANIFEST"
)

// Common error codes
const (
	ErrCodeInvalidFormat        = "INVALID_FORMAT"
	ErrCodeMissingAttribute     = "MISSING_ATTRIBUTE"
	ErrCodeOrphanURI            = "ORPHAN_URI"
	ErrCodeFetchFailed          = "FETCH_FAILED"
	ErrCodeMasterUnavailable    = "MASTER_UNAVAILABLE"
	ErrCodeUnsupportedContainer = "UNSUPPORTED_CONTAINER"
	ErrCodeTruncatedBox         = "TRUNCATED_BOX"
	ErrCodeStopped              = "STOPPED"
)

// ManifestError represents manifest-related errors with integrated logging
type ManifestError struct {
	Category ErrorCategory  `json:"category"`
	URI      string         `json:"uri"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Cause    error          `json:"-"`
	Fields   logging.Fields `json:"fields,omitempty"`
}

func (e *ManifestError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// Log logs this error using the global logger
func (e *ManifestError) Log() {
	e.LogWith(logging.GetGlobalLogger())
}

// LogWith logs this error using a specific logger
func (e *ManifestError) LogWith(logger logging.Logger) {
	fields := logging.Fields{
		"category":   string(e.Category),
		"uri":        e.URI,
		"error_code": e.Code,
	}

	maps.Copy(fields, e.Fields)

	logger.Error(e.Cause, e.Message, fields)
}

// NewManifestError creates a new manifest error
func NewManifestError(category ErrorCategory, uri, code, message string, cause error) *ManifestError {
	return &ManifestError{
		Category: category,
		URI:      uri,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Fields:   make(logging.Fields),
	}
}

// NewManifestErrorWithFields creates a new manifest error with additional fields
func NewManifestErrorWithFields(category ErrorCategory, uri, code, message string, cause error, fields logging.Fields) *ManifestError {
	return &ManifestError{
		Category: category,
		URI:      uri,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Fields:   fields,
	}
}
