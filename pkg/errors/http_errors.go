package errors

import (
	stderrors "errors"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// NotFoundWithDetails creates a 404 Not Found error with details
func NotFoundWithDetails(code string, message string, details any) *AppError {
	return NewNotFoundError(code, message).WithDetails(details)
}

// FromError converts a standard error to an AppError
// If the error chain already holds an AppError, that one is returned
// Otherwise, it is wrapped as an internal server error
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	// Internal causes are not echoed to clients.
	return NewInternalServerError(CodeInternal, "An unexpected error occurred").WithCause(err)
}
