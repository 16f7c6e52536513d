// Package errors provides structured error types for the quill template
// engine. Parse-time errors carry the offending fragment and its position
// so that callers can report a broken template usefully; render-time
// errors identify the tag or plugin that failed. Errors are classified by
// type so the CLI and embedding applications can decide whether a failure
// is fatal to loading or recoverable.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes template errors.
type ErrorType string

const (
	// ErrorTypeParse covers malformed tags, unbalanced block markers,
	// invalid recursion and undefined USE targets. Parse errors are
	// fatal to loading the template file.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeRender covers failures raised while assembling output,
	// such as a plugin returning an error or the render depth bound
	// being exceeded.
	ErrorTypeRender ErrorType = "render"
	// ErrorTypePlugin indicates a function or modifier plugin that
	// could not be found at render time.
	ErrorTypePlugin ErrorType = "plugin"
	// ErrorTypeIO covers template file resolution and read failures.
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeConfig covers invalid engine configuration.
	ErrorTypeConfig ErrorType = "config"
)

// TemplateError is a structured error with template context.
type TemplateError struct {
	Type     ErrorType
	Code     string
	Message  string
	Template string
	Fragment string
	Line     int
	Column   int
	Cause    error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		location := e.Template
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	if e.Fragment != "" {
		parts = append(parts, fmt.Sprintf("near %q", e.Fragment))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *TemplateError) Is(target error) bool {
	var t *TemplateError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation attaches the template name and position.
func (e *TemplateError) WithLocation(template string, line, column int) *TemplateError {
	e.Template = template
	e.Line = line
	e.Column = column

	return e
}

// WithFragment attaches the offending source fragment, truncated so that
// error messages stay readable for long literal runs.
func (e *TemplateError) WithFragment(fragment string) *TemplateError {
	const maxFragment = 40
	if len(fragment) > maxFragment {
		fragment = fragment[:maxFragment] + "..."
	}
	e.Fragment = fragment

	return e
}

// WithCause attaches an underlying error.
func (e *TemplateError) WithCause(cause error) *TemplateError {
	e.Cause = cause

	return e
}

// NewParseError creates a parse-time error.
func NewParseError(code, message string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypeParse,
		Code:    code,
		Message: message,
	}
}

// NewRenderError creates a render-time error.
func NewRenderError(code, message string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypeRender,
		Code:    code,
		Message: message,
	}
}

// NewPluginError creates an error for a missing or failing plugin.
func NewPluginError(code, message string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypePlugin,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates a file resolution or read error.
func NewIOError(code, message string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TemplateError {
	return &TemplateError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// IsParseError reports whether err is (or wraps) a parse-time error.
func IsParseError(err error) bool {
	var te *TemplateError
	return errors.As(err, &te) && te.Type == ErrorTypeParse
}

// IsRenderError reports whether err is (or wraps) a render-time error.
func IsRenderError(err error) bool {
	var te *TemplateError
	return errors.As(err, &te) && te.Type == ErrorTypeRender
}
