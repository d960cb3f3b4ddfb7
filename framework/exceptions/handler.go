// Package exceptions reports errors to the log and renders them as JSON
// responses with a status derived from the error type.
package exceptions

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/container"
	gohttp "github.com/km-arc/go-assistant/framework/http"
	"github.com/km-arc/go-assistant/framework/validation"
)

// Token is the container token of the *Handler.
var Token = container.TypeOf[*Handler]()

// Handler is the single place errors leave the application.
type Handler struct {
	logger *zap.Logger
	debug  bool
}

// NewHandler creates a Handler. With debug on, 500 responses carry the
// error text instead of a generic message.
func NewHandler(logger *zap.Logger, debug bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger, debug: debug}
}

// Status maps err to an HTTP status.
func Status(err error) int {
	var notFound *container.ServiceNotFoundError
	var invalid *validation.Errors
	switch {
	case errors.As(err, &notFound):
		return http.StatusServiceUnavailable
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Report logs err. Disabled features and invalid input are expected and
// logged below error level.
func (h *Handler) Report(err error) {
	switch Status(err) {
	case http.StatusServiceUnavailable:
		h.logger.Info("feature disabled", zap.Error(err))
	case http.StatusUnprocessableEntity:
		h.logger.Debug("invalid input", zap.Error(err))
	default:
		h.logger.Error("unhandled error", zap.Error(err))
	}
}

// Render reports err and writes the matching JSON response.
func (h *Handler) Render(w http.ResponseWriter, err error) {
	h.Report(err)
	res := gohttp.NewResponse(w)

	var notFound *container.ServiceNotFoundError
	var invalid *validation.Errors
	switch {
	case errors.As(err, &notFound):
		res.JSON(http.StatusServiceUnavailable, map[string]any{
			"message": "feature disabled",
			"service": notFound.Token.String(),
		})
	case errors.As(err, &invalid):
		res.ValidationError(invalid)
	default:
		status := Status(err)
		msg := http.StatusText(status)
		if h.debug {
			msg = err.Error()
		}
		if status == http.StatusInternalServerError {
			res.ServerError(msg)
			return
		}
		res.Error(status, msg)
	}
}
