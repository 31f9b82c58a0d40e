package httpapi

import (
	"errors"
	"net/http"

	"arteng.org/internal/audit"
	"arteng.org/internal/auth"
	"arteng.org/internal/identity"
)

// Error codes returned in the envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	CodeInvalidInput = "INVALID_INPUT"
)

// apiError is an error with a fixed HTTP status and envelope code.
type apiError struct {
	status  int
	code    string
	message string
	err     error
}

func (e *apiError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *apiError) Unwrap() error { return e.err }

func validationError(msg string) error {
	return &apiError{status: http.StatusBadRequest, code: CodeValidation, message: msg}
}

func invalidInput(msg string) error {
	return &apiError{status: http.StatusBadRequest, code: CodeInvalidInput, message: msg}
}

// toAPIError maps err onto the closed set of envelope codes.
func toAPIError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	var re *audit.RetentionError
	switch {
	case errors.As(err, &re):
		return &apiError{status: http.StatusBadRequest, code: CodeValidation, message: re.Error(), err: err}
	case errors.Is(err, auth.ErrUnauthorized):
		return &apiError{status: http.StatusUnauthorized, code: CodeUnauthorized, message: "Authentication required", err: err}
	case errors.Is(err, auth.ErrForbidden):
		return &apiError{status: http.StatusForbidden, code: CodeForbidden, message: "Admin access required", err: err}
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, audit.ErrNotFound):
		return &apiError{status: http.StatusNotFound, code: CodeNotFound, message: "Resource not found", err: err}
	default:
		return &apiError{status: http.StatusInternalServerError, code: CodeInternal, message: err.Error(), err: err}
	}
}
