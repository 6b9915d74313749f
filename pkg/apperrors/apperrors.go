package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies coordinator errors for clients.
type Code string

const (
	CodeProtocol     Code = "PROTOCOL_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeCollaborator Code = "COLLABORATOR_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// AppError carries a classification alongside the cause. The HTTP status
// only matters on the read-only REST surface; WebSocket clients see the
// code and message.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code Code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code Code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

func NewProtocol(message string) *AppError {
	return New(CodeProtocol, message, http.StatusBadRequest)
}

func NewUnauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func NewForbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func NewNotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewConflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// From extracts an AppError from the chain, or nil.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
