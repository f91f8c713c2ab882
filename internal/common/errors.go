// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Concurrency errors. Both surface as PostingConflict.
	ErrStaleBalance = errors.New("account balance changed concurrently")
	ErrClaimLost    = errors.New("staging movement claim lost")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorCode classifies why a staging movement could not be posted.
type ErrorCode string

// Posting error codes.
const (
	CodeUnknownOperationCode        ErrorCode = "UnknownOperationCode"
	CodeUnmappedExternalType        ErrorCode = "UnmappedExternalType"
	CodeAmbiguousMapping            ErrorCode = "AmbiguousMapping"
	CodeAccountNotFound             ErrorCode = "AccountNotFound"
	CodeCounterpartyAccountNotFound ErrorCode = "CounterpartyAccountNotFound"
	CodeZeroAmount                  ErrorCode = "ZeroAmount"
	CodeMalformedPayload            ErrorCode = "MalformedPayload"
	CodeInvalidPrecision            ErrorCode = "InvalidPrecision"
	CodePostingConflict             ErrorCode = "PostingConflict"
	CodeInternal                    ErrorCode = "Internal"
)

// Sentinels for errors.Is matching against a PostingError's code.
var (
	ErrUnknownOperationCode        = &PostingError{Code: CodeUnknownOperationCode}
	ErrUnmappedExternalType        = &PostingError{Code: CodeUnmappedExternalType}
	ErrAmbiguousMapping            = &PostingError{Code: CodeAmbiguousMapping}
	ErrAccountNotFound             = &PostingError{Code: CodeAccountNotFound}
	ErrCounterpartyAccountNotFound = &PostingError{Code: CodeCounterpartyAccountNotFound}
	ErrZeroAmount                  = &PostingError{Code: CodeZeroAmount}
	ErrMalformedPayload            = &PostingError{Code: CodeMalformedPayload}
	ErrInvalidPrecision            = &PostingError{Code: CodeInvalidPrecision}
	ErrPostingConflict             = &PostingError{Code: CodePostingConflict}
)

// PostingError is a classified failure to post one staging movement. It is
// fatal to that record and never to the batch.
type PostingError struct {
	Err       error
	Code      ErrorCode
	Message   string
	StagingID int64
}

// NewPostingError creates a classified posting error.
func NewPostingError(code ErrorCode, stagingID int64, format string, args ...any) *PostingError {
	return &PostingError{
		Code:      code,
		StagingID: stagingID,
		Message:   fmt.Sprintf(format, args...),
	}
}

// WrapPostingError classifies an underlying error.
func WrapPostingError(code ErrorCode, stagingID int64, err error) *PostingError {
	return &PostingError{
		Code:      code,
		StagingID: stagingID,
		Message:   err.Error(),
		Err:       err,
	}
}

func (e *PostingError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PostingError) Unwrap() error {
	return e.Err
}

// Is matches any PostingError carrying the same code.
func (e *PostingError) Is(target error) bool {
	var t *PostingError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the classification of err. Unclassified errors are Internal.
func CodeOf(err error) ErrorCode {
	var pe *PostingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// IsConflict reports whether err is a concurrent-claim or stale-balance race.
// Conflicts are left for a later run instead of being recorded as failures.
func IsConflict(err error) bool {
	return errors.Is(err, ErrPostingConflict) ||
		errors.Is(err, ErrStaleBalance) ||
		errors.Is(err, ErrClaimLost)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStaleBalance) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
