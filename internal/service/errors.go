package service

import "fmt"

// ServiceError wraps a failed store operation with the operation name.
type ServiceError struct {
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func opError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Message: message, Err: err}
}
