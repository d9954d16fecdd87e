package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrIndexUnavailable),
		domain.IsKind(err, domain.ErrModelUnavailable),
		domain.IsKind(err, domain.ErrTemporary),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage keeps client errors descriptive and hides internals behind a
// stable message for server-side failures.
func errorMessage(err error, status int) string {
	switch {
	case status < http.StatusInternalServerError:
		return err.Error()
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return "semantic search backend unavailable"
	case domain.IsKind(err, domain.ErrModelUnavailable):
		return "retrieval model unavailable"
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
