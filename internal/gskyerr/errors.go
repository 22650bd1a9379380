// Package gskyerr provides the structured error taxonomy of the theory
// pipeline. Every error carries a stable code so callers can branch with
// errors.Is regardless of the message.
package gskyerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies errors for consistent handling and display.
type Category string

const (
	CategoryConfig  Category = "config"  // bad or incompatible parameters
	CategoryRequest Category = "request" // a call referenced something not configured
	CategoryData    Category = "data"    // input data that cannot be used
	CategoryModel   Category = "model"   // physics the engine does not model
)

// Error codes.
const (
	CodeConfigInvalid          = "CONFIG_INVALID"
	CodeUnknownTracer          = "UNKNOWN_TRACER"
	CodeUnsupportedCombination = "UNSUPPORTED_COMBINATION"
	CodeSingularCovariance     = "SINGULAR_COVARIANCE"
	CodeDataInvalid            = "DATA_INVALID"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrConfig                 = &Error{Code: CodeConfigInvalid}
	ErrUnknownTracer          = &Error{Code: CodeUnknownTracer}
	ErrUnsupportedCombination = &Error{Code: CodeUnsupportedCombination}
	ErrSingularCovariance     = &Error{Code: CodeSingularCovariance}
	ErrDataInvalid            = &Error{Code: CodeDataInvalid}
)

// Error is a structured error with a code, a category and key/value context.
type Error struct {
	Code     string
	Category Category
	Message  string
	Context  map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with the given code, category and message.
func New(code string, category Category, message string) *Error {
	return &Error{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]string),
	}
}

// With adds a context key/value pair and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = fmt.Sprint(value)
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Config returns a CONFIG_INVALID error.
func Config(format string, args ...any) *Error {
	return New(CodeConfigInvalid, CategoryConfig, fmt.Sprintf(format, args...))
}

// UnknownTracer returns an UNKNOWN_TRACER error naming the missing tracer.
func UnknownTracer(name string) *Error {
	return New(CodeUnknownTracer, CategoryRequest, "tracer not configured").With("tracer", name)
}

// Unsupported returns an UNSUPPORTED_COMBINATION error for a tracer pair.
// The engine only logs it; it never reaches callers of AngularCl.
func Unsupported(a, b string) *Error {
	return New(CodeUnsupportedCombination, CategoryModel, "tracer combination not modelled").
		With("tracer1", a).With("tracer2", b)
}

// SingularCovariance returns a SINGULAR_COVARIANCE error.
func SingularCovariance(cause error) *Error {
	return New(CodeSingularCovariance, CategoryData, "covariance matrix is not invertible").WithCause(cause)
}

// Data returns a DATA_INVALID error.
func Data(format string, args ...any) *Error {
	return New(CodeDataInvalid, CategoryData, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
