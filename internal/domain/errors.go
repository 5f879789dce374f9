package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so copies made by WithError still compare equal
// to the predeclared error they came from.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing ingest token",
		StatusCode: 401,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted frame",
		StatusCode: 422,
	}

	// Identity errors
	ErrInvalidEmbedding = &AppError{
		Code:       "INVALID_EMBEDDING",
		Message:    "Embedding has wrong dimensionality or non-finite values",
		StatusCode: 422,
	}

	ErrIdentityNotFound = &AppError{
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "Identity not found",
		StatusCode: 404,
	}

	// Camera errors
	ErrCameraNotFound = &AppError{
		Code:       "CAMERA_NOT_FOUND",
		Message:    "Camera is not registered",
		StatusCode: 404,
	}

	ErrCameraExists = &AppError{
		Code:       "CAMERA_EXISTS",
		Message:    "Camera is already registered",
		StatusCode: 409,
	}

	ErrCameraOffline = &AppError{
		Code:       "CAMERA_OFFLINE",
		Message:    "Camera is offline",
		StatusCode: 409,
	}

	ErrSubscriptionClosed = &AppError{
		Code:       "SUBSCRIPTION_CLOSED",
		Message:    "Frame subscription closed",
		StatusCode: 410,
	}

	// Inference errors
	ErrInferenceTimeout = &AppError{
		Code:       "INFERENCE_TIMEOUT",
		Message:    "Frame processing deadline exceeded",
		StatusCode: 504,
	}

	ErrInferenceStopped = &AppError{
		Code:       "INFERENCE_STOPPED",
		Message:    "Inference executor is stopped",
		StatusCode: 503,
	}
)
