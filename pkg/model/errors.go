package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a scheduler error for callers and the API.
type ErrorCode string

const (
	CodeInvalidName           ErrorCode = "INVALID_NAME"
	CodeInsufficientResources ErrorCode = "INSUFFICIENT_RESOURCES"
	CodeQueueFull             ErrorCode = "QUEUE_FULL"
	CodeLaunchFailed          ErrorCode = "LAUNCH_FAILED"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeValidation            ErrorCode = "VALIDATION_ERROR"
	CodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. Any *Error with the same code matches.
var (
	ErrInvalidName           = &Error{Code: CodeInvalidName, Message: "invalid task name"}
	ErrInsufficientResources = &Error{Code: CodeInsufficientResources, Message: "not enough RAM or storage"}
	ErrQueueFull             = &Error{Code: CodeQueueFull, Message: "ready queue is full"}
	ErrLaunchFailed          = &Error{Code: CodeLaunchFailed, Message: "task launch failed"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "task not found"}
)

// Error is a structured, recoverable scheduler error.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WrapError creates an Error with the given code that wraps err.
func WrapError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// NewNotFoundError creates a NOT_FOUND error for a task identifier.
func NewNotFoundError(kind Kind, id int) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", kind, id),
	}
}

// CodeOf extracts the code of err, or CodeInternal when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
