package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// statusClientClosedRequest is nginx's non-standard code for a request the client abandoned.
const statusClientClosedRequest = 499

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Error renders echo and httperror errors as ErrorResponse. Anything else becomes a 500
// without leaking the underlying message.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var meta map[string]any

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		case httperror.IsHTTPError(err):
			httperr := httperror.ToHTTPError(err)
			code = httperror.GetStatusCode(err)
			message = httperr.Error()
			meta = httperr.Meta
		case errors.Is(err, context.DeadlineExceeded):
			code = http.StatusGatewayTimeout
			message = "request timed out"
		case errors.Is(err, context.Canceled):
			// client went away; nobody reads this response
			code = statusClientClosedRequest
			message = "request cancelled"
		}

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": code})
		switch {
		case code >= http.StatusInternalServerError:
			log.Error("api is returning an error")
		case code == statusClientClosedRequest:
			log.Info("client closed request")
		default:
			log.Warn("api is returning a client error")
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: appctx.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}
