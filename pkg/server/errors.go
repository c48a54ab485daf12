// Package rest is the Control Surface (C6): the HTTP/JSON request verbs
// and WebSocket streaming channel of spec §4.7/§6, translating external
// calls into pkg/registry and pkg/engine operations. Grounded on the
// teacher's internal/infrastructure/api/rest package (APIError/
// TranslateError shape, gin handler layout), trimmed from its SaaS-era
// sentinel block (auth, billing, rental keys, triggers — none of which
// exist here) down to exactly the seven error kinds spec §7 names.
package rest

import (
	"errors"
	"net/http"

	"github.com/dibenedetto/meshade/pkg/models"
)

// APIError is the typed error envelope every Control Surface handler
// returns, carrying the HTTP status the caller should see alongside a
// machine-readable code.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError builds an APIError with no extra detail fields.
func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// NewAPIErrorWithDetails builds an APIError carrying structured detail
// fields (e.g. the offending field of a validation failure).
func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]any) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "invalid request", http.StatusBadRequest)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
)

// TranslateError maps an internal error to the Control Surface's typed
// envelope, spec §7's seven error kinds: invalid_workflow, not_found,
// already_running/already_terminal, not_waiting, node_failure, deadlock,
// cancelled.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, models.ErrWorkflowNotFound):
		return NewAPIError("NOT_FOUND", "workflow not found", http.StatusNotFound)
	case errors.Is(err, models.ErrExecutionNotFound):
		return NewAPIError("NOT_FOUND", "execution not found", http.StatusNotFound)
	case errors.Is(err, models.ErrExecutorNotFound):
		return NewAPIError("NOT_FOUND", "executor not found", http.StatusNotFound)

	case errors.Is(err, models.ErrInvalidWorkflow):
		return NewAPIError("INVALID_WORKFLOW", "invalid workflow structure", http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidNodeType):
		return NewAPIError("INVALID_WORKFLOW", "invalid node type", http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidEdge):
		return NewAPIError("INVALID_WORKFLOW", "invalid edge configuration", http.StatusBadRequest)

	case errors.Is(err, models.ErrAlreadyRunning):
		return NewAPIError("ALREADY_RUNNING", "execution is already running", http.StatusConflict)
	case errors.Is(err, models.ErrAlreadyTerminal):
		return NewAPIError("ALREADY_TERMINAL", "execution has already reached a terminal state", http.StatusConflict)

	case errors.Is(err, models.ErrNotWaiting):
		return NewAPIError("NOT_WAITING", "node is not waiting for input", http.StatusConflict)

	case errors.Is(err, models.ErrNodeExecutionFailed):
		return NewAPIError("NODE_FAILURE", "node execution failed", http.StatusOK)

	case errors.Is(err, models.ErrDeadlock):
		return NewAPIError("DEADLOCK", "deadlock: pending nodes could never become ready", http.StatusOK)

	case errors.Is(err, models.ErrExecutionCancelled):
		return NewAPIError("CANCELLED", "execution cancelled", http.StatusOK)
	}

	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return NewAPIErrorWithDetails("INVALID_WORKFLOW", validationErr.Message, http.StatusBadRequest, map[string]any{
			"field": validationErr.Field,
		})
	}

	return NewAPIError("INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}
