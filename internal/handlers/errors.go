package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"circle-system/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// toAPIError maps the service error taxonomy onto HTTP responses. Integrity
// failures never leak details to the caller.
func toAPIError(op string, err error) error {
	if err == nil {
		return nil
	}

	var fe *status.FieldError
	if errors.As(err, &fe) {
		return apis.NewBadRequestError(fe.Error(), map[string]any{fe.Field: fe.Reason})
	}

	switch status.Kind(err) {
	case status.ErrIntegrity:
		slog.Error(op, "kind", "integrity", "error", err)
		return apis.NewInternalServerError("Please contact support", nil)
	case status.ErrNotFound:
		return apis.NewNotFoundError("Not found", nil)
	case status.ErrConflict:
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case status.ErrOutOfWindow:
		return apis.NewApiError(http.StatusUnprocessableEntity, err.Error(), nil)
	case status.ErrInvalidArgument:
		return apis.NewBadRequestError(err.Error(), nil)
	}

	slog.Error(op, "error", err)
	return apis.NewInternalServerError("internal error", nil)
}

func requireAuth(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return e.Auth.Id, nil
}

// callerID is empty for anonymous callers.
func callerID(e *core.RequestEvent) string {
	if e.Auth == nil {
		return ""
	}
	return e.Auth.Id
}
