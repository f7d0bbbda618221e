// Package errors provides the structured error taxonomy for the HDFS client:
// error codes, their hierarchy, and conversion of native errno results.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for filesystem client operations.
type ErrorCode string

// Error code constants. The hierarchy between them is defined by Parent.
const (
	// ErrCodeDFS is the root of every filesystem-reported failure.
	ErrCodeDFS ErrorCode = "DFS_EXCEPTION"

	// Connection lifecycle
	ErrCodeConnect      ErrorCode = "CONNECT_ERROR"
	ErrCodeNotConnected ErrorCode = "NOT_CONNECTED"

	// File and path errors
	ErrCodeFile         ErrorCode = "FILE_ERROR"
	ErrCodeCouldNotOpen ErrorCode = "COULD_NOT_OPEN_FILE"
	ErrCodeFileClosed   ErrorCode = "FILE_CLOSED"
	ErrCodeDoesNotExist ErrorCode = "DOES_NOT_EXIST"

	// Programming errors made by the caller
	ErrCodeArgument ErrorCode = "ARGUMENT_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConnection ErrorCategory = "connection"
	CategoryFile       ErrorCategory = "file"
	CategoryPath       ErrorCategory = "path"
	CategoryArgument   ErrorCategory = "argument"
)

var parents = map[ErrorCode]ErrorCode{
	ErrCodeConnect:      ErrCodeDFS,
	ErrCodeNotConnected: ErrCodeDFS,
	ErrCodeFile:         ErrCodeDFS,
	ErrCodeCouldNotOpen: ErrCodeFile,
	ErrCodeFileClosed:   ErrCodeFile,
	ErrCodeDoesNotExist: ErrCodeFile,
}

// Parent returns the code this code specializes, or "" for a root code.
func Parent(code ErrorCode) ErrorCode {
	return parents[code]
}

// IsA reports whether code equals ancestor or descends from it.
func IsA(code, ancestor ErrorCode) bool {
	for c := code; c != ""; c = parents[c] {
		if c == ancestor {
			return true
		}
	}
	return false
}

// DFSError represents a structured error with context and metadata.
type DFSError struct {
	// Core error information
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Cause    error             `json:"-"`

	// Errno is the native error number captured at the failing call, 0 if none.
	Errno syscall.Errno `json:"errno,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`

	Stack string `json:"stack,omitempty"`
}

// Sentinel errors for errors.Is comparisons. Matching follows the code
// hierarchy, so errors.Is(err, ErrFileError) holds for a FileClosed error.
var (
	ErrDFS          = &DFSError{Code: ErrCodeDFS}
	ErrConnect      = &DFSError{Code: ErrCodeConnect}
	ErrNotConnected = &DFSError{Code: ErrCodeNotConnected}
	ErrFileError    = &DFSError{Code: ErrCodeFile}
	ErrCouldNotOpen = &DFSError{Code: ErrCodeCouldNotOpen}
	ErrFileClosed   = &DFSError{Code: ErrCodeFileClosed}
	ErrDoesNotExist = &DFSError{Code: ErrCodeDoesNotExist}
	ErrArgument     = &DFSError{Code: ErrCodeArgument}
)

// Error implements the error interface.
func (e *DFSError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *DFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error's code is the target's code or one of its descendants.
func (e *DFSError) Is(target error) bool {
	if t, ok := target.(*DFSError); ok {
		return IsA(e.Code, t.Code)
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *DFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("Errno=%d", int(e.Errno)))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("DFSError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *DFSError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new error with default values.
func NewError(code ErrorCode, message string) *DFSError {
	return &DFSError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
	}
}

// Newf creates a new error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *DFSError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch {
	case code == ErrCodeArgument:
		return CategoryArgument
	case code == ErrCodeConnect || code == ErrCodeNotConnected:
		return CategoryConnection
	case code == ErrCodeDoesNotExist || code == ErrCodeDFS:
		return CategoryPath
	default:
		return CategoryFile
	}
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "pkg/errors/") {
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *DFSError) WithContext(key, value string) *DFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *DFSError) WithComponent(component string) *DFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *DFSError) WithOperation(operation string) *DFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause and records its errno, if any.
func (e *DFSError) WithCause(cause error) *DFSError {
	e.Cause = cause
	if errno, ok := ErrnoOf(cause); ok {
		e.Errno = errno
	}
	return e
}

// WithStack captures the current stack trace
func (e *DFSError) WithStack() *DFSError {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a short hint for fixing the error.
func (e *DFSError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeConnect: "Verify the NameNode host and port, and that the native client " +
			"was initialized before the first connection.",
		ErrCodeNotConnected: "The connection was disconnected. Open a new connection; " +
			"handles opened from the old one cannot be reused.",
		ErrCodeFileClosed: "The file handle was closed. Reopen the path to continue.",
		ErrCodeCouldNotOpen: "Check that the path exists (for reads), that its parent is writable, " +
			"and that no other writer holds the file.",
		ErrCodeDoesNotExist: "The path does not exist. Check for typos and the working directory.",
		ErrCodeArgument:     "The call was made with an invalid argument; see the message for the offending value.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}
	return "Please check the error message for details."
}
