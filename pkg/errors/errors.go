package errors

import "fmt"

// AppError represents a local application error. Code follows the proxy's
// envelope convention where every local error uses -1; Wrap/New still take
// an explicit code so tests and non-coordinator callers aren't tied to that
// constant.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates a new AppError wrapping another error.
func Wrap(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Local builds the proxy's standard local error, always code -1.
func Local(message string) *AppError {
	return New(-1, message)
}
