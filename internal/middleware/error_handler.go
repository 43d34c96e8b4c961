package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"estate_backoffice/internal/reconcile"
	"estate_backoffice/internal/services"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{reconcile.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrNotFound, http.StatusNotFound, "not_found"},

	{reconcile.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{reconcile.ErrInvalidAmount, http.StatusBadRequest, "invalid_request"},
	{reconcile.ErrInvalidRefundStatus, http.StatusBadRequest, "invalid_request"},
	{reconcile.ErrInvalidIdempotencyKey, http.StatusBadRequest, "invalid_request"},
	{reconcile.ErrSamePlot, http.StatusBadRequest, "invalid_request"},
	{services.ErrValidation, http.StatusBadRequest, "invalid_request"},

	{reconcile.ErrRefundTransition, http.StatusUnprocessableEntity, "refund_rejected"},
	{reconcile.ErrRefundDecrease, http.StatusUnprocessableEntity, "refund_rejected"},
	{reconcile.ErrRefundExceedsPaid, http.StatusUnprocessableEntity, "refund_rejected"},
	{services.ErrOverpayment, http.StatusUnprocessableEntity, "overpayment"},

	{services.ErrForbidden, http.StatusForbidden, "forbidden"},

	{reconcile.ErrPlotNotSold, http.StatusConflict, "state_conflict"},
	{reconcile.ErrPlotUnavailable, http.StatusConflict, "state_conflict"},
	{reconcile.ErrSaleNotActive, http.StatusConflict, "state_conflict"},
	{services.ErrPlotNotAvailable, http.StatusConflict, "state_conflict"},
	{services.ErrSaleCancelled, http.StatusConflict, "state_conflict"},
	{services.ErrDuplicate, http.StatusConflict, "duplicate"},
	{reconcile.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{reconcile.ErrWorkflowInProgress, http.StatusConflict, "in_progress"},
}

// Classify maps an error to its HTTP status, code and client-facing message
func Classify(err error) (int, string, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, codeForStatus(he.Code), msg
	}

	var stepErr *reconcile.StepError
	if errors.As(err, &stepErr) {
		return http.StatusInternalServerError, "step_failed", stepErr.Error()
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal", "internal server error"
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= 500 {
		return "internal"
	}
	return "error"
}

// NewErrorHandler renders every error as JSON
func NewErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, code, msg := Classify(err)
		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		}
		if status >= 500 {
			log.Error("request failed", fields...)
		} else {
			log.Debug("request rejected", fields...)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorResponse{Error: msg, Code: code})
		}
		if writeErr != nil {
			log.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}
