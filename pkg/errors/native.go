package errors

import (
	stderrors "errors"
	"fmt"
	"syscall"
)

// EINTERNAL is the errno the native client reports for internal failures.
const EINTERNAL syscall.Errno = 255

// ErrnoOf extracts the native errno carried by err.
func ErrnoOf(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if err != nil && stderrors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// Strerror renders a native failure. EINTERNAL reads "Internal Error";
// other errnos use the platform text.
func Strerror(err error) string {
	if err == nil {
		return "Unknown error"
	}
	if errno, ok := ErrnoOf(err); ok {
		if errno == EINTERNAL {
			return "Internal Error"
		}
		return errno.Error()
	}
	return err.Error()
}

// FromNative converts a native failure into a structured error. The message
// is the formatted text followed by the native error text.
func FromNative(code ErrorCode, cause error, format string, args ...interface{}) *DFSError {
	msg := fmt.Sprintf(format, args...)
	return NewError(code, msg+": "+Strerror(cause)).WithCause(cause)
}

// PathCode classifies a failed stat or listing: a missing path is
// DOES_NOT_EXIST, anything else DFS_EXCEPTION.
func PathCode(cause error) ErrorCode {
	if errno, ok := ErrnoOf(cause); ok && errno == syscall.ENOENT {
		return ErrCodeDoesNotExist
	}
	return ErrCodeDFS
}

// Code returns the code of err if it is a DFSError, or "" otherwise.
func Code(err error) ErrorCode {
	var dfsErr *DFSError
	if stderrors.As(err, &dfsErr) {
		return dfsErr.Code
	}
	return ""
}

// Is reports whether err matches target; re-exported for callers that
// import this package under the name errors.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
