package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so a sentinel still matches after a cause has been attached.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// WithCause returns a copy of e carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err (or anything it wraps) is a DomainError with code.
func HasCode(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeExtraction        = "EXTRACTION_FAILED"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeEmbedding         = "EMBEDDING_FAILED"
	ErrCodeStore             = "STORE_FAILED"
)

// Validation errors
var (
	ErrEmptyQuery         = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidStrategy    = NewDomainError(ErrCodeValidation, "invalid retrieval strategy")
	ErrInvalidChunkConfig = NewDomainError(ErrCodeValidation, "invalid chunk configuration")
)

// Not found errors
var (
	ErrSourceNotFound = NewDomainError(ErrCodeNotFound, "document source not found")
	ErrPathNotFound   = NewDomainError(ErrCodeNotFound, "path not found")
)

// Extraction errors
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "unsupported file format")
	ErrCorruptFile       = NewDomainError(ErrCodeExtraction, "corrupt or unreadable file")
	ErrExtractorMissing  = NewDomainError(ErrCodeExtraction, "extraction tool not available")
)

// Embedding errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeEmbedding, "embedding provider unavailable")
	ErrEmbeddingMalformed   = NewDomainError(ErrCodeEmbedding, "embedding provider returned a malformed response")
)

// Store errors
var (
	ErrStoreUnavailable = NewDomainError(ErrCodeStore, "document store unavailable")
)
