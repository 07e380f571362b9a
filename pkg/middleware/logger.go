package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// Logger writes one access log line per request.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()

			fields := appctx.LogFields(ctx)
			fields["method"] = req.Method
			fields["uri"] = req.RequestURI
			fields["route"] = c.Path()
			fields["status"] = res.Status
			fields["remote_ip"] = c.RealIP()
			fields["user_agent"] = req.UserAgent()
			fields["response_time"] = time.Since(start).String()
			fields["response_size"] = res.Size

			logger.WithContext(ctx).WithFields(fields).Info("Request")
			return nil
		}
	}
}
