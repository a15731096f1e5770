// Package errors defines the structured error type shared by every stage of
// the bundle compiler.
//
// All fatal build conditions are reported as *Error values carrying an
// ErrorType (the taxonomy) and a stable Code. Callers classify failures with
// the Is* predicates, which search the whole chain of wrapped causes.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfigResolution ErrorType = "config_resolution"
	ErrorTypeVariantFilter    ErrorType = "variant_filter"
	ErrorTypeEncoding         ErrorType = "encoding"
	ErrorTypeUnknownMinifier  ErrorType = "unknown_minifier"
	ErrorTypeTemplate         ErrorType = "template"
	ErrorTypeFragment         ErrorType = "fragment"
	ErrorTypeMinify           ErrorType = "minify"
	ErrorTypeIO               ErrorType = "io"
	ErrorTypeConfig           ErrorType = "config"
	ErrorTypeInternal         ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigResolution = "ERR_CONFIG_RESOLUTION"
	ErrCodeUnknownExport    = "ERR_UNKNOWN_EXPORT"
	ErrCodeVariantFilter    = "ERR_VARIANT_FILTER"
	ErrCodeEncoding         = "ERR_ENCODING"
	ErrCodeUnknownMinifier  = "ERR_UNKNOWN_MINIFIER"
	ErrCodeTemplateSlot     = "ERR_TEMPLATE_SLOT"
	ErrCodeFragment         = "ERR_FRAGMENT"
	ErrCodeMinify           = "ERR_MINIFY"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// Error is a structured error type with context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Path locates the offending value inside the configuration tree,
	// dot separated (e.g. "tags.URL.attributes.url").
	Path string
}

// Error implements the error interface. A path is shown once, by the
// outermost error that carries one.
func (e *Error) Error() string {
	return e.format(false)
}

func (e *Error) format(pathShown bool) string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" && !pathShown {
		parts = append(parts, "at "+e.Path+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if inner, ok := e.Cause.(*Error); ok && inner != nil {
		result += ": " + inner.format(pathShown || e.Path != "")
	} else if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath sets the configuration tree path of the offending value.
func (e *Error) WithPath(path string) *Error {
	e.Path = path

	return e
}

// Error creation functions

// NewConfigResolutionError reports a configuration tree that is missing or
// lacks one of its required sections.
func NewConfigResolutionError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConfigResolution,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewVariantFilterError reports a failure while filtering target variants.
func NewVariantFilterError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeVariantFilter,
		Code:    ErrCodeVariantFilter,
		Message: message,
		Cause:   cause,
	}
}

// NewEncodingError reports a value the encoder cannot represent.
func NewEncodingError(path, message string) *Error {
	return &Error{
		Type:    ErrorTypeEncoding,
		Code:    ErrCodeEncoding,
		Message: message,
		Path:    path,
	}
}

// NewUnknownMinifierError reports a minifier selector that names no
// registered minifier.
func NewUnknownMinifierError(name string) *Error {
	return &Error{
		Type:    ErrorTypeUnknownMinifier,
		Code:    ErrCodeUnknownMinifier,
		Message: fmt.Sprintf("unknown minifier %q", name),
		Context: map[string]interface{}{"minifier": name},
	}
}

// NewTemplateError reports a runtime fragment set that breaks the slot
// contract.
func NewTemplateError(message string) *Error {
	return &Error{
		Type:    ErrorTypeTemplate,
		Code:    ErrCodeTemplateSlot,
		Message: message,
	}
}

// NewFragmentError reports a fragment that could not be loaded.
func NewFragmentError(name string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeFragment,
		Code:    ErrCodeFragment,
		Message: fmt.Sprintf("cannot load runtime fragment %q", name),
		Cause:   cause,
		Context: map[string]interface{}{"fragment": name},
	}
}

// NewMinifyError reports a minifier that failed to process the source.
func NewMinifyError(minifier string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeMinify,
		Code:    ErrCodeMinify,
		Message: fmt.Sprintf("minifier %s failed", minifier),
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates an application configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// hasType reports whether any *Error in err's chain has errType. Wrapping
// changes the outer type, so the whole chain is searched.
func hasType(err error, errType ErrorType) bool {
	switch x := err.(type) {
	case nil:
		return false
	case *Error:
		if x == nil {
			return false
		}
		return x.Type == errType || hasType(x.Cause, errType)
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if hasType(inner, errType) {
				return true
			}
		}
		return false
	}
	return hasType(errors.Unwrap(err), errType)
}

// IsConfigResolutionError checks if an error is a config resolution failure.
func IsConfigResolutionError(err error) bool {
	return hasType(err, ErrorTypeConfigResolution)
}

// IsVariantFilterError checks if an error came from variant filtering.
func IsVariantFilterError(err error) bool {
	return hasType(err, ErrorTypeVariantFilter)
}

// IsEncodingError checks if an error came from the value encoder.
func IsEncodingError(err error) bool {
	return hasType(err, ErrorTypeEncoding)
}

// IsUnknownMinifierError checks if an error is an unresolvable minifier.
func IsUnknownMinifierError(err error) bool {
	return hasType(err, ErrorTypeUnknownMinifier)
}

// IsTemplateError checks if an error is a broken slot contract.
func IsTemplateError(err error) bool {
	return hasType(err, ErrorTypeTemplate)
}

// IsFragmentError checks if an error is a runtime fragment load failure.
func IsFragmentError(err error) bool {
	return hasType(err, ErrorTypeFragment)
}

// IsMinifyError checks if an error came from a minifier.
func IsMinifyError(err error) bool {
	return hasType(err, ErrorTypeMinify)
}

// IsIOError checks if an error is an I/O error.
func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

// IsConfigError checks if an error is an application configuration error.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}
