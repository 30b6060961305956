package apperr

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so errors.Is(err, ErrChatExists)
// holds for any ALREADY_EXISTS error regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// Constructors
func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error {
	return New(CodeValidation, msg)
}

func Conflict(msg string) error {
	return New(CodeConflict, msg)
}

func AlreadyExists(msg string) error {
	return New(CodeAlreadyExists, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func Auth(msg string) error {
	return New(CodeAuth, msg)
}

func Transport(msg string, cause error) error {
	return Wrap(CodeTransport, msg, cause)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf returns the code of the outermost AppError in the chain.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Message returns the user-facing text of err: the AppError message when
// present, the raw error text otherwise.
func Message(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// OrTransport passes AppErrors through and wraps anything else, typically a
// collaborator failure, as TRANSPORT.
func OrTransport(msg string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return err
	}
	return Transport(msg, err)
}
