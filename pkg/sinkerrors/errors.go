// Package sinkerrors provides the structured error type shared by every depot
// component. Errors carry a category, a message, an optional cause, key-value
// details and the call stack captured where they were created.
//
// # Categories
//
// The category decides how a caller reacts:
//   - ErrorTypeConfig and ErrorTypeSchemaMapping abort a batch.
//   - ErrorTypeDeserialization fails a single message.
//   - ErrorTypeRateLimit is a transient backend error, retried by the reconciler.
//   - ErrorTypeBackend is a permanent backend error.
//   - ErrorTypeWrite and ErrorTypeTTL describe per-entry write failures.
//
// # Basic Usage
//
//	err := sinkerrors.New(sinkerrors.ErrorTypeConfig, "Empty config SINK_REDIS_LIST_DATA_FIELD_NAME found").
//	    WithDetail("data_type", "list")
//
//	if sinkerrors.IsType(err, sinkerrors.ErrorTypeConfig) {
//	    return err // the whole batch is unusable
//	}
//
// Error instances are not safe for concurrent modification. Finish adding
// details before sharing an error across goroutines.
package sinkerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeInternal represents unexpected internal failures
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents invalid or missing configuration
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeSchemaMapping represents a field schema with no column type
	ErrorTypeSchemaMapping ErrorType = "schema_mapping"
	// ErrorTypeLocationImmutable represents an attempt to move an existing dataset
	ErrorTypeLocationImmutable ErrorType = "location_immutable"
	// ErrorTypeDeserialization represents a message that could not be decoded
	ErrorTypeDeserialization ErrorType = "deserialization"
	// ErrorTypeRateLimit represents a transient, rate limited backend call
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeBackend represents a permanent backend failure
	ErrorTypeBackend ErrorType = "backend"
	// ErrorTypeWrite represents a failed entry write
	ErrorTypeWrite ErrorType = "write"
	// ErrorTypeTTL represents a failed expiry update
	ErrorTypeTTL ErrorType = "ttl"
)

// Error is a structured error with context.
//
// Example:
//
//	err := &Error{
//	    Type:    ErrorTypeSchemaMapping,
//	    Message: "No type mapping found for field: ts",
//	    Details: map[string]interface{}{"field": "ts"},
//	}
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of the call stack captured at creation time.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given type, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a type and message. A stack already captured by a
// wrapped *Error is preserved. Returns nil if err is nil.
//
// Example:
//
//	if err := client.CreateTable(ctx, id, spec); err != nil {
//	    return sinkerrors.Wrap(err, sinkerrors.ErrorTypeBackend, "table create failed").
//	        WithDetail("table", id.Name)
//	}
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether err is a transient backend error.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == ErrorTypeRateLimit
}

// IsFatal reports whether err invalidates the whole batch rather than a
// single message.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeConfig, ErrorTypeSchemaMapping, ErrorTypeLocationImmutable:
		return true
	default:
		return false
	}
}

// IsType reports whether the outermost *Error in err's chain has the given type.
//
// Example:
//
//	if sinkerrors.IsType(err, sinkerrors.ErrorTypeDeserialization) {
//	    // fail this message only
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost *Error in err's chain, or
// ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
