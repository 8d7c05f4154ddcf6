/*
Copyright 2024 Skylane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrTransientStore    ErrorCode = "TRANSIENT_STORE_FAILURE"
	ErrRetriesExhausted  ErrorCode = "RETRIES_EXHAUSTED"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf extracts the error code, defaulting to INTERNAL_SERVER_ERROR for
// untyped errors.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}

// IsConflict reports whether the error is a lost optimistic-concurrency race.
// Callers retry with the next candidate or fall back to waitlist enrollment.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrConflict
}

// IsInvalidTransition reports whether the requested state change is not
// reachable from the current state. Never retried.
func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrInvalidTransition
}

// IsNotFound reports whether a referenced entity is missing.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// IsTransient reports whether the failure is a store outage worth retrying
// with backoff. Only errors the store layer explicitly tagged as transient
// qualify; an untyped or internal error is a bug, not an outage, and
// retrying it would only repeat the failure.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrTransientStore
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrInvalidTransition:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrTransientStore:
			return http.StatusServiceUnavailable
		case ErrInternalServer, ErrRetriesExhausted:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
